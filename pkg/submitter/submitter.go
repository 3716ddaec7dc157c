// Package submitter hands finished spend bundles off to the broadcast layer
// over NATS. Mempool acceptance and confirmation tracking live on the other
// side of the subject.
package submitter

import (
	"context"
	"fmt"
	"time"

	"github.com/fystack/spendkit/pkg/common/config"
	"github.com/fystack/spendkit/pkg/common/constant"
	"github.com/fystack/spendkit/pkg/common/logger"
	"github.com/fystack/spendkit/pkg/ledger"
	"github.com/fystack/spendkit/pkg/retry"
	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"
)

type Submitter struct {
	conn        *nats.Conn
	subject     string
	limiter     *rate.Limiter
	maxAttempts int
}

func New(conn *nats.Conn, cfg config.SubmitterConfig, subjectPrefix string) *Submitter {
	if subjectPrefix == "" {
		subjectPrefix = constant.BundleSubjectPrefix
	}
	ratePerSecond := cfg.RatePerSecond
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = retry.DefaultMaxAttempts
	}

	return &Submitter{
		conn:        conn,
		subject:     subjectPrefix + ".submit",
		limiter:     rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		maxAttempts: maxAttempts,
	}
}

// Submit publishes the bundle's canonical encoding. The bundle name rides
// along as the message id so the consumer can deduplicate redeliveries.
func (s *Submitter) Submit(ctx context.Context, bundle ledger.SpendBundle) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	name := bundle.Name()
	e := ledger.NewEncoder()
	bundle.EncodeTo(e)

	msg := nats.NewMsg(s.subject)
	msg.Header.Set(nats.MsgIdHdr, name.String())
	msg.Data = e.Bytes()

	err := retry.Constant(func() error {
		return s.conn.PublishMsg(msg)
	}, time.Second, s.maxAttempts)
	if err != nil {
		return fmt.Errorf("submitter: publish bundle %s: %w", name, err)
	}

	logger.Info("Submitted spend bundle",
		"name", name,
		"coinSpends", len(bundle.CoinSpends),
		"subject", s.subject)
	return nil
}

// Close flushes buffered publishes before the connection goes away.
func (s *Submitter) Close() error {
	if err := s.conn.FlushTimeout(5 * time.Second); err != nil {
		return err
	}
	s.conn.Close()
	return nil
}
