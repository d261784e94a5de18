package logsvc

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/user"
)

func TestRollbarLogger(t *testing.T) {
	conf := core.NewTestConfig()
	var buf bytes.Buffer
	logger := NewRollbarLogger(log.New(&buf, "", 0), conf)

	usr := user.User{ID: "u1", Email: "ada@school.test"}
	logger.Error("fetching classes", errors.New("boom"), usr)
	logger.Debug("debugging", map[string]interface{}{"table": "classes"})

	out := buf.String()
	assert.Contains(t, out, "ERROR: fetching classes\nboom\n")
	assert.NotContains(t, out, "ada@school.test")
	assert.Contains(t, out, "DEBUG: debugging\nmap[table:classes]\n")

	logger.debug = false
	buf.Reset()
	logger.Debug("hidden")
	assert.Empty(t, buf.String())
}
