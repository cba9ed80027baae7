package message

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredentialsNeverPrintSecret(t *testing.T) {
	c := Credentials{Address: "a@x.com", Secret: "hunter2"}

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("login", "account", c)

	assert.Contains(t, buf.String(), "a@x.com")
	assert.NotContains(t, buf.String(), "hunter2")
	assert.NotContains(t, fmt.Sprint(c), "hunter2")
	assert.NotContains(t, fmt.Sprintf("%v", c), "hunter2")
}
