package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceError_WrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewSourceError("central-bank", "fetching rate sheet", cause)

	assert.Contains(t, err.Error(), "central-bank")
	assert.Contains(t, err.Error(), "connection refused")
	assert.True(t, Is(err, cause))
}

func TestSourceError_WithoutCause(t *testing.T) {
	err := NewSourceError("quote-api", "unexpected status 404", nil)
	assert.Equal(t, "source error [quote-api]: unexpected status 404", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestStoreError_KeyFormatting(t *testing.T) {
	cause := errors.New("disk full")

	withKey := NewStoreError("save", "THYAO", cause)
	assert.Contains(t, withKey.Error(), "THYAO")

	withoutKey := NewStoreError("save", "", cause)
	assert.Equal(t, "store error [save]: disk full", withoutKey.Error())
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))

	wrapped := Wrap(ErrAlertNotActive, "triggering alert")
	assert.True(t, Is(wrapped, ErrAlertNotActive))
	assert.Contains(t, wrapped.Error(), "triggering alert")
}

func TestAs(t *testing.T) {
	var srcErr *SourceError
	err := Wrap(NewSourceError("news-feed", "primary down", nil), "ingesting news")
	assert.True(t, As(err, &srcErr))
	assert.Equal(t, "news-feed", srcErr.Source)
}
