package httpapi

import (
	"encoding/json"
	"time"

	"github.com/johnrirwin/agenda/internal/models"
)

// encodeList marshals each element on its own and leaves out the ones that
// fail, so one bad record cannot break a whole listing. The result is never
// nil.
func encodeList[T any](items []T, onDrop func(index int, err error)) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(items))
	for i, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			if onDrop != nil {
				onDrop(i, err)
			}
			continue
		}
		out = append(out, raw)
	}
	return out
}

type bucketJSON struct {
	Date      time.Time         `json:"date"`
	DayNumber int               `json:"dayNumber"`
	DayName   string            `json:"dayName"`
	Events    []json.RawMessage `json:"events"`
}

func encodeBuckets(buckets []models.DayBucket, onDrop func(index int, err error)) []bucketJSON {
	out := make([]bucketJSON, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, bucketJSON{
			Date:      b.Date,
			DayNumber: b.DayNumber,
			DayName:   b.DayName,
			Events:    encodeList(b.Events, onDrop),
		})
	}
	return out
}
