package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const closeTimeout = 5 * time.Second

// ListenConn is a dedicated connection subscribed to the change channel.
type ListenConn interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// ListenDialer opens a new ListenConn.
type ListenDialer func(ctx context.Context) (ListenConn, error)

// PoolListener takes a connection out of the pool for LISTEN. The connection
// is hijacked so it never returns to the pool still subscribed.
func PoolListener(pool *pgxpool.Pool) ListenDialer {
	return func(ctx context.Context) (ListenConn, error) {
		pooled, err := pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		conn := pooled.Hijack()
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{changeChannel}.Sanitize()); err != nil {
			conn.Close(ctx)
			return nil, err
		}
		return conn, nil
	}
}

// Notifier relays change notifications written by other server instances.
type Notifier struct {
	dial       ListenDialer
	origin     string
	handle     func(ChangeNotification)
	logger     *zap.Logger
	newBackOff func() backoff.BackOff
}

func NewNotifier(dial ListenDialer, origin string, handle func(ChangeNotification), logger *zap.Logger) *Notifier {
	return &Notifier{
		dial:   dial,
		origin: origin,
		handle: handle,
		logger: logger.Named("notifier"),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Run listens until ctx is cancelled, reconnecting with exponential backoff
// whenever the connection drops.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		conn, err := n.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		err = n.listen(ctx, conn)
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		conn.Close(closeCtx)
		cancel()

		if ctx.Err() != nil {
			return nil
		}
		n.logger.Warn("listen connection lost, reconnecting", zap.Error(err))
	}
}

func (n *Notifier) connect(ctx context.Context) (ListenConn, error) {
	var conn ListenConn
	op := func() error {
		c, err := n.dial(ctx)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		n.logger.Warn("listen dial failed", zap.Error(err), zap.Duration("retry_in", wait))
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(n.newBackOff(), ctx), notify); err != nil {
		return nil, err
	}
	return conn, nil
}

func (n *Notifier) listen(ctx context.Context, conn ListenConn) error {
	for {
		note, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}

		var change ChangeNotification
		if err := json.Unmarshal([]byte(note.Payload), &change); err != nil {
			n.logger.Warn("bad change payload", zap.String("payload", note.Payload), zap.Error(err))
			continue
		}
		if change.Origin == n.origin {
			continue
		}
		n.handle(change)
	}
}
