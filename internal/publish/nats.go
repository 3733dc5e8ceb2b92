package publish

import (
	"fmt"
	"time"

	"cosmossdk.io/log"
	"github.com/nats-io/nats.go"
)

// Connect dials the NATS server at url. The connection retries in the
// background so a broker that is not up yet does not block node startup.
func Connect(url, name string, logger log.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	opts := []nats.Option{
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Error("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}
