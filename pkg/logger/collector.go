package logger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Publisher ships aggregated entries. The Kafka producer satisfies it.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // unique entries that force a flush
	Topic          string
	Publisher      Publisher
	Levels         []string // levels to aggregate, error only when empty
	PublishTimeout time.Duration
}

type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector de-duplicates repeated log lines and ships them in batches.
type LogCollector struct {
	config   CollectionConfig
	levels   map[string]bool
	fallback zerolog.Logger

	mutex  sync.Mutex
	logMap map[string]*AggregatedLogEntry

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	sending sync.WaitGroup
	now     func() time.Time
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	cfg := *config
	if cfg.TimeInterval <= 0 {
		cfg.TimeInterval = 30 * time.Second
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = 100
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 30 * time.Second
	}
	levels := map[string]bool{}
	for _, lv := range cfg.Levels {
		levels[lv] = true
	}
	if len(levels) == 0 {
		levels["error"] = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	collector := &LogCollector{
		config:   cfg,
		levels:   levels,
		fallback: zerolog.New(os.Stderr).With().Timestamp().Str("component", "log_collector").Logger(),
		logMap:   make(map[string]*AggregatedLogEntry),
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}

	collector.wg.Add(1)
	go collector.periodicFlush()

	return collector
}

// Accepts reports whether entries of level are aggregated.
func (d *LogCollector) Accepts(level string) bool { return d.levels[level] }

func (d *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	if !d.Accepts(level) {
		return
	}
	now := d.now()
	key := generateKey(level, message, fields, caller)

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if entry, exists := d.logMap[key]; exists {
		entry.Count++
		entry.LastSeen = now
	} else {
		d.logMap[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	if len(d.logMap) >= d.config.CountThreshold {
		d.flushLocked()
	}
}

// Pending returns the number of unique entries not yet shipped.
func (d *LogCollector) Pending() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.logMap)
}

func generateKey(level, message string, fields map[string]interface{}, caller string) string {
	data := struct {
		Level   string                 `json:"level"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
		Caller  string                 `json:"caller"`
	}{level, message, fields, caller}

	jsonData, _ := json.Marshal(data)
	return fmt.Sprintf("%x", sha256.Sum256(jsonData))
}

func (d *LogCollector) periodicFlush() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.Flush()
		case <-d.ctx.Done():
			d.Flush()
			return
		}
	}
}

// Flush ships whatever is pending.
func (d *LogCollector) Flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.flushLocked()
}

func (d *LogCollector) flushLocked() {
	if len(d.logMap) == 0 {
		return
	}

	logs := make([]AggregatedLogEntry, 0, len(d.logMap))
	for _, entry := range d.logMap {
		logs = append(logs, *entry)
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].Count > logs[j].Count })
	d.logMap = make(map[string]*AggregatedLogEntry)

	if d.config.Publisher == nil {
		return
	}
	d.sending.Add(1)
	go func() {
		defer d.sending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.config.PublishTimeout)
		defer cancel()

		if err := d.config.Publisher.PublishMessage(ctx, d.config.Topic, logs); err != nil {
			d.fallback.Error().Err(err).Int("entries", len(logs)).Str("topic", d.config.Topic).
				Msg("failed to send aggregated logs")
		}
	}()
}

// Close flushes pending entries and waits for in-flight sends.
func (d *LogCollector) Close() {
	d.cancel()
	d.wg.Wait()
	d.sending.Wait()
}
