package sl

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErr(t *testing.T) {
	attr := Err(errors.New("connection refused"))
	assert.Equal(t, "error", attr.Key)
	assert.Equal(t, "connection refused", attr.Value.String())

	empty := Err(nil)
	assert.Equal(t, "error", empty.Key)
	assert.Equal(t, "", empty.Value.String())
}

func TestOp(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	Op(log, "places.RefreshCategory").Info("refreshed")

	assert.Contains(t, buf.String(), "op=places.RefreshCategory")
	assert.Contains(t, buf.String(), "msg=refreshed")
}
