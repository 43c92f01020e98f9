package hl7

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AckCode classifies an acknowledgment response.
type AckCode string

const (
	AckAccept AckCode = "AA"
	AckError  AckCode = "AE"
	AckReject AckCode = "AR"
)

// AckSource is the read surface the generator needs from a source message.
// Both tree roots satisfy it.
type AckSource interface {
	Get(coords ...int) (string, error)
}

// ackFields reads header fields, capturing the first error so call sites
// stay flat.
type ackFields struct {
	src AckSource
	err error
}

func (a *ackFields) get(coords ...int) string {
	if a.err != nil {
		return ""
	}
	v, err := a.src.Get(coords...)
	if err != nil {
		a.err = err
	}
	return v
}

// GenerateAck builds the acknowledgment for src: the header swaps sending
// and receiving application and facility, carries a fresh timestamp and
// control id, and forces the trigger-event component to ACK; the second
// segment is MSA with the response code, the source control id, and the
// reason when one is supplied.
func GenerateAck(src AckSource, code AckCode, reason string) (*MessageBuilder, error) {
	f := &ackFields{src: src}
	sendingApp := f.get(1, 3)
	sendingFacility := f.get(1, 4)
	receivingApp := f.get(1, 5)
	receivingFacility := f.get(1, 6)
	msgType := f.get(1, 9, 1, 1)
	controlID := f.get(1, 10)
	processingID := f.get(1, 11)
	version := f.get(1, 12)
	if f.err != nil {
		return nil, fmt.Errorf("hl7: read source header: %w", f.err)
	}

	event := "ACK"
	if msgType != "" {
		event = msgType + "^ACK"
	}
	now := time.Now().UTC().Format("20060102150405")
	ackControlID := "ACK" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])

	header := fmt.Sprintf("MSH|^~\\&|%s|%s|%s|%s|%s||%s|%s|%s|%s",
		receivingApp, receivingFacility, sendingApp, sendingFacility,
		now, event, ackControlID, processingID, version)
	status := fmt.Sprintf("MSA|%s|%s", code, controlID)
	if reason != "" {
		status += "|" + reason
	}

	return NewMessageBuilderFrom(header + string(SegmentDelimiter) + status)
}
