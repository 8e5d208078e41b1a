package event

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/nats-io/nats.go"

	"relmap/logging"
)

// natsConn nats.Conn 的子集，便于测试替换
type natsConn interface {
	Publish(subject string, data []byte) error
}

// NATSConfig NATS 发布配置
type NATSConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
	Conn          *nats.Conn
	Logger        logging.Logger
}

// NATSPublisher 以 JSON 发布到 <prefix>.<table>.<op>
type NATSPublisher struct {
	conn     natsConn
	raw      *nats.Conn
	ownsConn bool
	prefix   string
	logger   logging.Logger
}

// NewNATSPublisher 创建 NATS 发布者；未提供 Conn 时按 URL 建立连接
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	conn := cfg.Conn
	owns := false
	if conn == nil {
		url := cfg.URL
		if url == "" {
			url = nats.DefaultURL
		}
		c, err := nats.Connect(url, nats.Name("relmap"))
		if err != nil {
			return nil, err
		}
		conn, owns = c, true
	}
	p := newNATSPublisher(conn, cfg.SubjectPrefix, cfg.Logger)
	p.raw, p.ownsConn = conn, owns
	return p, nil
}

func newNATSPublisher(conn natsConn, prefix string, logger logging.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = "relmap"
	}
	return &NATSPublisher{
		conn:   conn,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: logging.ComponentLogger(logger, "orm.event.nats"),
	}
}

// Subject 返回事件的主题
func (p *NATSPublisher) Subject(evt Event) string {
	return p.prefix + "." + evt.Table + "." + string(evt.Op)
}

func (p *NATSPublisher) Publish(ctx context.Context, evt Event) error {
	if p.conn == nil {
		return errors.New("nats publisher not connected")
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	subject := p.Subject(evt)
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn(ctx, "publish event failed", logging.String("subject", subject), logging.Error(err))
		return err
	}
	p.logger.Debug(ctx, "event published", logging.String("subject", subject), logging.String("event_id", evt.ID))
	return nil
}

// Close 关闭自行建立的连接
func (p *NATSPublisher) Close() error {
	if p.ownsConn && p.raw != nil {
		if err := p.raw.Drain(); err != nil {
			p.raw.Close()
			return err
		}
	}
	return nil
}
