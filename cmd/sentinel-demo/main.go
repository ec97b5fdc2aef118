// Command sentinel-demo wires every component of the inbound-email
// threat-detection pipeline together against in-memory/mock backends: DNS
// resolution, SPF/DKIM/DMARC evaluation, sender classification, the
// resilience substrate, the worker queue, the batch processor, the
// remediator and the disaster-recovery controller. It mirrors maddy's
// cmd/maddy entrypoint in spirit (load config, build modules, run) but has
// no listener and no wire protocol of its own: the core is meant to be
// embedded, and this binary only proves the wiring end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/foxcpp/go-mockdns"

	"github.com/inboxsentinel/core/internal/authdkim"
	"github.com/inboxsentinel/core/internal/authdmarc"
	"github.com/inboxsentinel/core/internal/authspf"
	"github.com/inboxsentinel/core/internal/batch"
	"github.com/inboxsentinel/core/internal/classify"
	"github.com/inboxsentinel/core/internal/config"
	"github.com/inboxsentinel/core/internal/dnsresolve"
	"github.com/inboxsentinel/core/internal/dr"
	"github.com/inboxsentinel/core/internal/email"
	"github.com/inboxsentinel/core/internal/log"
	"github.com/inboxsentinel/core/internal/remediate"
	"github.com/inboxsentinel/core/internal/resilience"
	"github.com/inboxsentinel/core/internal/workqueue"
)

func main() {
	flag.Parse()

	logger := log.Logger{Out: log.WriterOutput(os.Stderr, false), Name: "sentinel-demo"}

	cfg, err := config.FromEnv(func(key string) (string, bool) {
		if key == "SENTINEL_BACKUP_KEY" {
			return "demo-backup-key", true
		}
		return os.LookupEnv(key)
	})
	if err != nil {
		logger.Error("config", err)
		os.Exit(1)
	}
	logger.Msg("loaded configuration", "dnsBackend", cfg.DNSBackend, "logLevel", cfg.LogLevel)

	ctx := context.Background()

	msg := sampleMessage()

	resolver := mockResolver()
	runAuthentication(ctx, logger, resolver, msg)

	registry := classify.NewRegistry([]classify.SenderInfo{
		{Domain: "newsletter.example.com", Name: "Example Co", Category: classify.CategoryMarketing},
	})
	cls := classify.ClassifyEmailType(registry, msg)
	logger.Msg("classified message", "type", string(cls.Type), "confidence", cls.Confidence)

	breakers := resilience.NewRegistry()
	runWorkQueue(ctx, logger, breakers)
	runBatch(ctx, logger)
	runRemediation(ctx, logger, breakers)
	runDisasterRecovery(ctx, logger, cfg)

	logger.Msg("demo run complete")
}

func sampleMessage() *email.ParsedEmail {
	return &email.ParsedEmail{
		MessageID: "demo-0001",
		From: email.From{
			Address: "alerts@newsletter.example.com",
			Domain:  "newsletter.example.com",
		},
		Recipients: []string{"user@host-service.invalid"},
		Subject:    "Your order has shipped",
		Body: email.Body{
			Text: "Your order has shipped. Track it here. Unsubscribe at any time.",
		},
		Headers: map[string]string{
			"List-Unsubscribe": "<mailto:unsub@newsletter.example.com>",
		},
	}
}

func mockResolver() dnsresolve.Backend {
	zones := map[string]mockdns.Zone{
		"newsletter.example.com.": {
			TXT: []string{"v=spf1 ip4:203.0.113.9 -all", "v=DMARC1; p=quarantine; rua=mailto:dmarc@example.com"},
		},
		"_dmarc.newsletter.example.com.": {
			TXT: []string{"v=DMARC1; p=quarantine; rua=mailto:dmarc@example.com"},
		},
	}
	return dnsresolve.NewMockdnsBackend(zones)
}

func runAuthentication(ctx context.Context, logger log.Logger, resolver dnsresolve.Backend, msg *email.ParsedEmail) {
	logger = logger.WithFields(map[string]interface{}{
		"messageID":  msg.MessageID,
		"fromDomain": msg.From.Domain,
	})

	spfEval := authspf.NewEvaluator(resolver)
	senderIP := net.ParseIP("203.0.113.9")
	spfResult := spfEval.Validate(ctx, senderIP, msg.From.Address, msg.From.Domain)
	spfAuthres := spfResult.Authres(msg.From.Address, msg.From.Domain)
	logger.Msg("spf evaluated", "result", string(spfResult.Result), "authres", string(spfAuthres.Value))

	keyCache := authdkim.NewKeyCache(resolver)
	dkimVerifier := authdkim.NewVerifier(keyCache)
	dkimResults := dkimVerifier.VerifyMessage(ctx, nil, []byte(msg.Body.Text), time.Now())
	logger.Msg("dkim evaluated", "signatureCount", len(dkimResults))
	for _, sig := range dkimResults {
		logger.Msg("dkim signature", "domain", sig.Domain, "authres", string(sig.Authres().Value))
	}

	rec, foundAt, err := authdmarc.GetRecord(ctx, resolver, msg.From.Domain)
	if err != nil {
		logger.Msg("dmarc record lookup failed", "error", err.Error())
		return
	}
	if rec == nil {
		logger.Msg("no dmarc record published", "domain", msg.From.Domain)
		return
	}
	dmarcResult := authdmarc.Evaluate(authdmarc.EvalInput{
		HeaderFromDomain: msg.From.Domain,
		MailFromDomain:   msg.From.Domain,
		SPFResult:        spfResult.Result,
	}, rec, foundAt)
	dmarcAuthres := dmarcResult.Authres(msg.From.Domain)
	logger.Msg("dmarc evaluated", "result", dmarcResult.Result, "appliedPolicy", string(dmarcResult.AppliedPolicy), "authres", string(dmarcAuthres.Value))
}

func runWorkQueue(ctx context.Context, logger log.Logger, breakers *resilience.Registry) {
	breakers.GetOrCreate(resilience.BreakerConfig{Name: "demo-scoring"})

	q := workqueue.NewQueue(workqueue.Config{
		MaxConcurrent:   2,
		MaxRetries:      1,
		RetryDelay:      10 * time.Millisecond,
		ThreatThreshold: 80,
		OnThreatDetected: func(job *workqueue.Job, score float64) {
			logger.Msg("threat detected", "jobID", job.ID, "score", score)
		},
	})

	job, err := workqueue.NewJob(5, map[string]string{"messageId": "demo-0001"})
	if err != nil {
		logger.Error("enqueue", err)
		return
	}
	q.Enqueue(job)

	err = q.ProcessAll(ctx, func(j *workqueue.Job) workqueue.Result {
		return workqueue.Result{Score: 92}
	})
	if err != nil {
		logger.Error("process queue", err)
	}

	stats := q.Stats()
	logger.Msg("queue drained", "processed", stats.Processed, "threatRate", stats.ThreatRate)
}

func runBatch(ctx context.Context, logger log.Logger) {
	domains := []string{"a.invalid", "b.invalid", "c.invalid"}
	proc := batch.NewProcessor(batch.ProcessorConfig{ChunkSize: 2, Concurrency: 2}, func(ctx context.Context, domain string) (string, error) {
		return "checked:" + domain, nil
	})
	result := proc.Run(ctx, domains)
	logger.Msg("batch processed", "results", len(result.Results), "errors", len(result.Errors), "durationMs", result.Duration.Milliseconds())
}

func runRemediation(ctx context.Context, logger log.Logger, breakers *resilience.Registry) {
	tokens := remediate.NewMemTokenStore()
	audit := remediate.NewMemAuditStore()
	_ = tokens.Save(ctx, "demo-integration", remediate.Token{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)})

	r := remediate.NewRemediator(tokens, audit, breakers)
	r.Notify = func(entry remediate.AuditEntry) {
		logger.Msg("remediation audited", "action", string(entry.Action), "success", entry.Success)
	}

	integ := remediate.Integration{ID: "demo-integration", TenantID: "tenant-1", Provider: remediate.NewMailboxA("client", "secret")}
	if err := r.AutoRemediate(ctx, integ, "demo-0001", "quarantine"); err != nil {
		logger.Msg("auto-remediate failed (expected without a live provider)", "error", err.Error())
	}
}

func runDisasterRecovery(ctx context.Context, logger log.Logger, cfg config.EnvConfig) {
	storage := dr.NewMemBackupStorage()
	mgr := dr.NewBackupManager(storage, cfg.BackupEncryptionKey, cfg.DRRetentionWindow)

	id, checksum, err := mgr.CreateBackup(ctx, dr.CreateBackupOptions{
		DumpFn: func(ctx context.Context) ([]byte, error) { return []byte("demo sender registry snapshot"), nil },
	})
	if err != nil {
		logger.Error("create backup", err)
		return
	}
	if err := mgr.VerifyBackup(ctx, id, dr.VerifyOptions{}); err != nil {
		logger.Error("verify backup", err)
		return
	}
	logger.Msg("backup created and verified", "id", id, "checksum", checksum)

	fm := dr.NewFailoverManager(dr.FailoverConfig{
		Primary:   "primary-region",
		Secondary: "secondary-region",
		HealthCheck: func(ctx context.Context) error {
			return nil
		},
		Switchover: func(ctx context.Context, from, to string) error { return nil },
	})
	if err := fm.CheckHealth(ctx); err != nil {
		logger.Error("failover health check", err)
	}
	state, active := fm.State()
	fmt.Fprintf(os.Stderr, "dr status: state=%s active=%s\n", state, active)
}
