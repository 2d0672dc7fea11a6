// Package stats records per-turn chat metrics (time to first byte,
// total latency, outcome) and persists them to ~/.llmchat/stats.json.
package stats

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/arin/llmchat/internal/config"
)

const (
	fileName   = "stats.json"
	maxRecords = 1000
)

// Record is a single chat turn.
type Record struct {
	Timestamp        time.Time     `json:"timestamp"`
	TurnID           string        `json:"turn_id,omitempty"`
	Provider         string        `json:"provider"`
	Model            string        `json:"model"`
	Status           string        `json:"status"`
	FirstByteLatency time.Duration `json:"first_byte_ms,omitempty"`
	TotalLatency     time.Duration `json:"total_ms"`
	Chars            int           `json:"chars"`
	Committed        bool          `json:"committed"`
}

// Summary is the aggregated stats dashboard.
type Summary struct {
	TotalTurns        int            `json:"total_turns"`
	SuccessRate       float64        `json:"success_rate"`
	AvgFirstByteMs    int64          `json:"avg_first_byte_ms"`
	AvgTotalMs        int64          `json:"avg_total_ms"`
	StatusBreakdown   map[string]int `json:"status_breakdown"`
	ProviderBreakdown map[string]int `json:"provider_breakdown"`
	TopModels         []ModelCount   `json:"top_models"`
	TodayCount        int            `json:"today_count"`
	ThisWeekCount     int            `json:"this_week_count"`
}

// ModelCount pairs a model with its turn count.
type ModelCount struct {
	Model string `json:"model"`
	Count int    `json:"count"`
}

var fileMu sync.Mutex

func statsPath() string {
	return filepath.Join(config.Dir(), fileName)
}

// Save appends a new record to the stats file.
func Save(r Record) error {
	fileMu.Lock()
	defer fileMu.Unlock()

	r.Timestamp = time.Now()
	// Durations are stored as milliseconds.
	r.FirstByteLatency = r.FirstByteLatency / time.Millisecond
	r.TotalLatency = r.TotalLatency / time.Millisecond

	records, _ := loadAll()
	records = append(records, r)

	if len(records) > maxRecords {
		records = records[len(records)-maxRecords:]
	}

	if err := os.MkdirAll(config.Dir(), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(statsPath(), data, 0o600)
}

// LoadAll returns all stored records.
func LoadAll() ([]Record, error) {
	fileMu.Lock()
	defer fileMu.Unlock()
	return loadAll()
}

func loadAll() ([]Record, error) {
	data, err := os.ReadFile(statsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Summarize computes aggregated stats from all records.
func Summarize() (*Summary, error) {
	records, err := LoadAll()
	if err != nil {
		return nil, err
	}

	s := &Summary{
		TotalTurns:        len(records),
		StatusBreakdown:   map[string]int{},
		ProviderBreakdown: map[string]int{},
	}
	if len(records) == 0 {
		return s, nil
	}

	var totalFirst, totalAll int64
	var firstCount, successCount int
	modelFreq := map[string]int{}
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekAgo := now.AddDate(0, 0, -7)

	for _, r := range records {
		if r.Status == "success" {
			successCount++
		}
		if r.FirstByteLatency > 0 {
			totalFirst += int64(r.FirstByteLatency)
			firstCount++
		}
		totalAll += int64(r.TotalLatency)
		if r.Status != "" {
			s.StatusBreakdown[r.Status]++
		}
		if r.Provider != "" {
			s.ProviderBreakdown[r.Provider]++
		}
		if r.Model != "" {
			modelFreq[r.Model]++
		}
		if !r.Timestamp.Before(today) {
			s.TodayCount++
		}
		if r.Timestamp.After(weekAgo) {
			s.ThisWeekCount++
		}
	}

	s.SuccessRate = float64(successCount) / float64(len(records)) * 100
	s.AvgTotalMs = totalAll / int64(len(records))
	if firstCount > 0 {
		s.AvgFirstByteMs = totalFirst / int64(firstCount)
	}

	s.TopModels = topN(modelFreq, 5)

	return s, nil
}

func topN(freq map[string]int, n int) []ModelCount {
	var all []ModelCount
	for model, count := range freq {
		all = append(all, ModelCount{Model: model, Count: count})
	}
	// Selection sort; ties break alphabetically.
	for i := 0; i < len(all) && i < n; i++ {
		maxIdx := i
		for j := i + 1; j < len(all); j++ {
			if all[j].Count > all[maxIdx].Count ||
				(all[j].Count == all[maxIdx].Count && all[j].Model < all[maxIdx].Model) {
				maxIdx = j
			}
		}
		all[i], all[maxIdx] = all[maxIdx], all[i]
	}
	if len(all) > n {
		all = all[:n]
	}
	return all
}
