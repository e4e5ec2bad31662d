// internal/trainlog/trainlog.go
// Package trainlog reads the per-epoch JSON log the training program writes
// into its output directory and summarizes it.
package trainlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultLogName is the file the training program appends one JSON object
// per epoch to.
const DefaultLogName = "log.txt"

// COCO stat indices inside test_coco_eval_bbox.
const (
	COCOIndexAP   = 0
	COCOIndexAP50 = 1
)

var cocoKeys = []string{"test_coco_eval_bbox", "test_coco_eval"}

// Entry is one epoch line of the log.
type Entry struct {
	Epoch  int
	Values map[string]float64
	COCO   []float64
}

// Log is a parsed log file.
type Log struct {
	Dir     string
	Path    string
	Entries []Entry
	// Skipped counts lines that were not valid JSON objects.
	Skipped int
}

// Name is the run directory's base name, used as the run label.
func (l *Log) Name() string { return filepath.Base(l.Dir) }

// Read parses dir/name. A missing directory or file is an error; malformed
// lines are skipped and counted.
func Read(dir, name string) (*Log, error) {
	if name == "" {
		name = DefaultLogName
	}
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("run directory %q does not exist", dir)
		}
		return nil, fmt.Errorf("stat run directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%q is not a directory", dir)
	}

	path := filepath.Join(dir, name)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open training log: %w", err)
	}
	defer file.Close()

	out := &Log{Dir: dir, Path: path}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, ok := parseLine(line, len(out.Entries))
		if !ok {
			out.Skipped++
			continue
		}
		out.Entries = append(out.Entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read training log %s: %w", path, err)
	}
	return out, nil
}

func parseLine(line string, index int) (Entry, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, false
	}
	entry := Entry{Epoch: index, Values: make(map[string]float64, len(raw))}
	for key, value := range raw {
		var f float64
		if err := json.Unmarshal(value, &f); err == nil {
			entry.Values[key] = f
			continue
		}
		if entry.COCO == nil && isCOCOKey(key) {
			var stats []float64
			if err := json.Unmarshal(value, &stats); err == nil {
				entry.COCO = stats
			}
		}
	}
	if epoch, ok := entry.Values["epoch"]; ok {
		entry.Epoch = int(epoch)
	}
	return entry, true
}

func isCOCOKey(key string) bool {
	for _, k := range cocoKeys {
		if key == k {
			return true
		}
	}
	return false
}

// Series returns key's value for every entry, NaN where it is absent. The
// pseudo keys "mAP" (AP@0.5) and "AP" (AP@[.5:.95]) read the COCO stats.
func (l *Log) Series(key string) []float64 {
	out := make([]float64, len(l.Entries))
	for i, e := range l.Entries {
		out[i] = math.NaN()
		switch key {
		case "mAP":
			if len(e.COCO) > COCOIndexAP50 {
				out[i] = e.COCO[COCOIndexAP50]
			}
		case "AP":
			if len(e.COCO) > COCOIndexAP {
				out[i] = e.COCO[COCOIndexAP]
			}
		default:
			if v, ok := e.Values[key]; ok {
				out[i] = v
			}
		}
	}
	return out
}

// Epochs returns the epoch number of every entry.
func (l *Log) Epochs() []int {
	out := make([]int, len(l.Entries))
	for i, e := range l.Entries {
		out[i] = e.Epoch
	}
	return out
}

// Fields lists the field names that appear with a train_ or test_ prefix,
// plus mAP/AP when COCO stats are present.
func (l *Log) Fields() []string {
	seen := make(map[string]struct{})
	hasCOCO := false
	for _, e := range l.Entries {
		for key := range e.Values {
			for _, prefix := range []string{"train_", "test_"} {
				if strings.HasPrefix(key, prefix) {
					seen[strings.TrimPrefix(key, prefix)] = struct{}{}
				}
			}
		}
		if len(e.COCO) > 0 {
			hasCOCO = true
		}
	}
	fields := make([]string, 0, len(seen)+2)
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	if hasCOCO {
		fields = append(fields, "AP", "mAP")
	}
	return fields
}
