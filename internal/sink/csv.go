package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/quantrail/optionsfeed/internal/quotes"
)

var header = []string{
	"ts_utc", "instrument", "last_price", "volume", "oi",
	"average_price", "open", "high", "low", "close", "synthetic",
}

// CSV appends collected quote rows to one file per day under dir.
type CSV struct {
	dir string
}

func NewCSV(dir string) (*CSV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &CSV{dir: dir}, nil
}

// Append writes one row per instrument to today's file, creating it with
// a header when absent. Keys are written in sorted order so replays diff
// cleanly.
func (s *CSV) Append(ts time.Time, records map[string]quotes.Record) error {
	path := filepath.Join(s.dir, "quotes-"+ts.UTC().Format("2006-01-02")+".csv")

	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open sink file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(header); err != nil {
			return err
		}
	}

	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	stamp := ts.UTC().Format(time.RFC3339)
	for _, k := range keys {
		rec := records[k]
		row := []string{
			stamp,
			k,
			strconv.FormatFloat(rec.LastPrice, 'f', 2, 64),
			strconv.FormatInt(rec.Volume, 10),
			strconv.FormatInt(rec.OpenInterest, 10),
			strconv.FormatFloat(rec.AveragePrice, 'f', 2, 64),
			ohlcField(rec.OHLC, 'o'),
			ohlcField(rec.OHLC, 'h'),
			ohlcField(rec.OHLC, 'l'),
			ohlcField(rec.OHLC, 'c'),
			strconv.FormatBool(rec.Synthetic),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func ohlcField(o *quotes.OHLC, part byte) string {
	if o == nil {
		return ""
	}
	var v float64
	switch part {
	case 'o':
		v = o.Open
	case 'h':
		v = o.High
	case 'l':
		v = o.Low
	case 'c':
		v = o.Close
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
