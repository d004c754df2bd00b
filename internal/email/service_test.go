package email

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/hmis-api/internal/config"
)

type fakeSender struct {
	from   string
	to     []string
	body   bytes.Buffer
	closed bool
	err    error
}

func (f *fakeSender) Send(from string, to []string, msg io.WriterTo) error {
	if f.err != nil {
		return f.err
	}
	f.from, f.to = from, to
	_, err := msg.WriteTo(&f.body)
	return err
}

func (f *fakeSender) Close() error {
	f.closed = true
	return nil
}

func TestSMTPService_SendCustom(t *testing.T) {
	sender := &fakeSender{}
	svc := newWithDialer("ward@hospital.test", func() (gomail.SendCloser, error) { return sender, nil })

	id, err := svc.SendCustom(context.Background(), "patient@example.com", "Reminder", "See you at 10:00")
	require.NoError(t, err)
	assert.Contains(t, id, "@hmis>")
	assert.Equal(t, "ward@hospital.test", sender.from)
	assert.Equal(t, []string{"patient@example.com"}, sender.to)
	assert.Contains(t, sender.body.String(), "See you at 10:00")
	assert.True(t, sender.closed)
}

func TestSMTPService_Errors(t *testing.T) {
	svc := newWithDialer("x@y", func() (gomail.SendCloser, error) { return nil, errors.New("refused") })
	_, err := svc.SendCustom(context.Background(), "a@b", "s", "c")
	assert.Error(t, err)

	failing := &fakeSender{err: errors.New("550 mailbox unavailable")}
	svc = newWithDialer("x@y", func() (gomail.SendCloser, error) { return failing, nil })
	_, err = svc.SendCustom(context.Background(), "a@b", "s", "c")
	assert.ErrorContains(t, err, "550")

	_, err = NewSMTPService(config.SMTPConfig{}).SendCustom(context.Background(), "a@b", "s", "c")
	assert.ErrorIs(t, err, ErrDisabled)
}
