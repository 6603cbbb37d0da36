package marketdata

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"scalping-backtest-lab/internal/domain"
)

// ErrMalformedCSV is returned for rows that cannot be parsed.
var ErrMalformedCSV = errors.New("malformed OHLCV csv")

// CSVHeader is the column layout read and written by this package.
var CSVHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// ReadCSV parses timestamp,open,high,low,close,volume rows. A header row is
// skipped, UTF-16 input with a BOM is decoded, and timestamps in seconds
// are promoted to milliseconds. Rows are returned in file order.
func ReadCSV(r io.Reader) ([]domain.Bar, error) {
	br := bufio.NewReader(r)
	if b, _ := br.Peek(2); len(b) == 2 && ((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF)) {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		br = bufio.NewReader(transform.NewReader(br, dec))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var bars []domain.Bar
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedCSV, line, err)
		}
		if len(rec) < 6 {
			return nil, fmt.Errorf("%w: line %d: want 6 columns, got %d", ErrMalformedCSV, line, len(rec))
		}
		first := strings.TrimSpace(strings.TrimPrefix(rec[0], "\ufeff"))
		if line == 1 && isHeader(first) {
			continue
		}
		bar, err := parseRow(first, rec[1:6])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedCSV, line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func isHeader(s string) bool {
	s = strings.ToLower(s)
	return s == "timestamp" || s == "timestamp_ms" || s == "open_time" || s == "time"
}

func parseRow(ts string, cols []string) (domain.Bar, error) {
	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("timestamp %q: %w", ts, err)
	}
	if ms < 1e11 { // seconds
		ms *= 1000
	}
	var vals [5]decimal.Decimal
	for i, c := range cols {
		v, err := decimal.NewFromString(strings.Trim(strings.TrimSpace(c), `"`))
		if err != nil {
			return domain.Bar{}, fmt.Errorf("%s %q: %w", CSVHeader[i+1], c, err)
		}
		vals[i] = v
	}
	return domain.Bar{
		TimestampMs: ms,
		Open:        vals[0],
		High:        vals[1],
		Low:         vals[2],
		Close:       vals[3],
		Volume:      vals[4],
	}, nil
}

// WriteCSV writes bars with a header row.
func WriteCSV(w io.Writer, bars []domain.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, b := range bars {
		rec := []string{
			strconv.FormatInt(b.TimestampMs, 10),
			b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(), b.Volume.String(),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
