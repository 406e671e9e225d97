package sieveengine

import (
	"bytes"
	"fmt"
	"io"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
)

// ReadContext parses a raw RFC 5322 message into an evaluation context.
// Header values are decoded from RFC 2047 encoded words where possible and
// kept raw otherwise. Size is the length of the raw message.
func ReadContext(r io.Reader, envelopeFrom, envelopeTo string) (Context, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Context{}, fmt.Errorf("failed to read message: %w", err)
	}

	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return Context{}, fmt.Errorf("failed to parse message: %w", err)
	}

	header := make(map[string][]string)
	fields := entity.Header.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		key := fields.Key()
		header[key] = append(header[key], value)
	}

	body, err := io.ReadAll(entity.Body)
	if err != nil && !message.IsUnknownCharset(err) {
		return Context{}, fmt.Errorf("failed to read message body: %w", err)
	}

	return Context{
		EnvelopeFrom: envelopeFrom,
		EnvelopeTo:   envelopeTo,
		Header:       header,
		Body:         string(body),
		Size:         len(raw),
	}, nil
}
