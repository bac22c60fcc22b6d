package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"microbots.ai/internal/persistence/indexdb"
	"microbots.ai/internal/sim/engine"
)

type runtimeIndex interface {
	engine.RoundLogger
	engine.ConversionLogger
	Close() error
	RecordRunStart(info indexdb.RunInfo)
	RecordRunEnd(info indexdb.RunInfo)
	Stats() indexdb.Stats
}

func openRuntimeIndex(dataDir string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("MICROBOTS_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(dataDir, "index", "runs.sqlite")
		idx, err := indexdb.OpenSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "d1":
		endpoint := strings.TrimSpace(os.Getenv("MICROBOTS_INDEX_D1_INGEST_URL"))
		token := strings.TrimSpace(os.Getenv("MICROBOTS_INDEX_D1_TOKEN"))
		if endpoint == "" {
			return nil, fmt.Errorf("MICROBOTS_INDEX_BACKEND=d1 but MICROBOTS_INDEX_D1_INGEST_URL is empty")
		}
		flushMS := envInt("MICROBOTS_INDEX_D1_FLUSH_MS", 500)
		batchSize := envInt("MICROBOTS_INDEX_D1_BATCH_SIZE", 128)
		idx, err := indexdb.OpenD1(indexdb.D1Config{
			Endpoint:      endpoint,
			Token:         token,
			Deployment:    os.Getenv("MICROBOTS_DEPLOYMENT"),
			BatchSize:     batchSize,
			FlushInterval: time.Duration(flushMS) * time.Millisecond,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported MICROBOTS_INDEX_BACKEND: %s", backend)
	}
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

type multiRoundLogger struct {
	a engine.RoundLogger
	b engine.RoundLogger
}

func (m multiRoundLogger) WriteRound(entry engine.RoundLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteRound(entry)
	}
	if m.b != nil {
		_ = m.b.WriteRound(entry)
	}
	return nil
}

type multiConversionLogger struct {
	a engine.ConversionLogger
	b engine.ConversionLogger
}

func (m multiConversionLogger) WriteConversion(entry engine.ConversionEntry) error {
	if m.a != nil {
		_ = m.a.WriteConversion(entry)
	}
	if m.b != nil {
		_ = m.b.WriteConversion(entry)
	}
	return nil
}
