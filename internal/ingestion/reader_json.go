package ingestion

import (
	"fmt"
	"os"

	"github.com/tidwall/gjson"
)

// JSON candle columns read in this fixed order after the timestamp.
var jsonValueColumns = []string{"open", "high", "low", "close", "volume"}

// readJSONFrame parses a JSON candle file into a raw frame. The expected
// shape is a top-level "candles" array of objects keyed by timestamp_utc (or
// timestamp) plus open/high/low/close/volume. Cell text is carried verbatim
// so timestamp and numeric parsing behave exactly as for delimited sources.
func readJSONFrame(path string) (*rawFrame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	parsed := gjson.ParseBytes(data)
	candles := parsed.Get("candles")
	if !candles.Exists() || !candles.IsArray() {
		return nil, fmt.Errorf("%w: %s (no candles array)", ErrEmptySource, path)
	}

	items := candles.Array()
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySource, path)
	}

	// Pick the timestamp alias from the first candle; per-row fallbacks are
	// not supported, mirroring a single header row.
	tsName := ""
	for _, alias := range timestampAliases {
		if items[0].Get(alias).Exists() {
			tsName = alias
			break
		}
	}

	header := make([]string, 0, len(jsonValueColumns)+1)
	if tsName != "" {
		header = append(header, tsName)
	}
	for _, col := range jsonValueColumns {
		if items[0].Get(col).Exists() {
			header = append(header, col)
		}
	}

	frame := &rawFrame{header: header}
	for _, item := range items {
		row := make([]string, len(header))
		for i, col := range header {
			row[i] = cellText(item.Get(col))
		}
		frame.rows = append(frame.rows, row)
	}
	return frame, nil
}

// cellText renders a gjson value as the exact text a delimited cell would
// hold: raw literal for numbers, unquoted content for strings.
func cellText(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.String()
	}
	return v.Raw
}
