package logger

import (
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// Ключи атрибутов, общие для всех сервисов комнаты.
const (
	KeyRoom        = "room"
	KeyParticipant = "participant"
	KeyOp          = "op"
	KeyErr         = "err"
)

func Room(id string) slog.Attr        { return slog.String(KeyRoom, id) }
func Participant(id string) slog.Attr { return slog.String(KeyParticipant, id) }
func Op(name string) slog.Attr        { return slog.String(KeyOp, name) }

// Err: nil не пишется.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyErr, err.Error())
}

func ensureInstanceID(v string) string {
	if v != "" {
		return v
	}
	hn, _ := os.Hostname()
	return hn + "-" + uuid.NewString()[:8]
}

func baseAttrs(cfg Config) []slog.Attr {
	return []slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("env", string(cfg.Env)),
		slog.String("version", cfg.Version),
		slog.String("instance_id", cfg.InstanceID),
		slog.Time("started_at", time.Now()),
	}
}
