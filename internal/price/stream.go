package price

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// errSkipEntry tells forEachDataEntry to drop the current entry and keep
// going. Any other error from the callback aborts the stream.
var errSkipEntry = errors.New("skip entry")

// forEachDataEntry walks the top-level "data" object of an upstream
// document, invoking fn once per (key, value) pair. Values are materialized
// one at a time, so memory stays bounded by the largest single entry rather
// than the document size. The walk is single-pass and stops after the data
// object closes.
//
// It returns the number of entries skipped via errSkipEntry. A syntax error
// in the stream itself is fatal and is returned as err.
func forEachDataEntry(r io.Reader, fn func(key string, raw json.RawMessage) error) (skipped int, err error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return 0, fmt.Errorf("document start: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return 0, fmt.Errorf("document is not a JSON object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return skipped, fmt.Errorf("top-level key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return skipped, fmt.Errorf("unexpected top-level token %v", tok)
		}

		if key != "data" {
			// meta and friends are small; discard them whole.
			var discard json.RawMessage
			if err := dec.Decode(&discard); err != nil {
				return skipped, fmt.Errorf("skipping %q: %w", key, err)
			}
			continue
		}

		tok, err = dec.Token()
		if err != nil {
			return skipped, fmt.Errorf("data start: %w", err)
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '{' {
			return skipped, fmt.Errorf("data is not a JSON object")
		}

		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return skipped, fmt.Errorf("entry key: %w", err)
			}
			entryKey, ok := tok.(string)
			if !ok {
				return skipped, fmt.Errorf("unexpected entry token %v", tok)
			}
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return skipped, fmt.Errorf("entry %q: %w", entryKey, err)
			}
			if err := fn(entryKey, raw); err != nil {
				if errors.Is(err, errSkipEntry) {
					skipped++
					continue
				}
				return skipped, err
			}
		}

		// Closing brace of data; everything after it is irrelevant.
		if _, err := dec.Token(); err != nil {
			return skipped, fmt.Errorf("data end: %w", err)
		}
		return skipped, nil
	}

	return skipped, errors.New("document has no data object")
}
