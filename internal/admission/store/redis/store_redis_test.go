package redis

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMember(t *testing.T) {
	ts := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	m, err := decodeMember("alice", "3:"+itoa(ts.UnixNano()))
	require.NoError(t, err)
	assert.Equal(t, 3, m.Seq)
	assert.True(t, m.AdmittedAt.Equal(ts))

	for _, bad := range []string{"", "3", "x:1", "3:y"} {
		_, err := decodeMember("alice", bad)
		assert.Error(t, err, bad)
	}
}

func TestToInt(t *testing.T) {
	assert.Equal(t, 7, toInt(int64(7)))
	assert.Equal(t, 7, toInt("7"))
	assert.Equal(t, 0, toInt(nil))
}

func TestNew_DefaultPrefix(t *testing.T) {
	s := New(nil, "")
	assert.Equal(t, "whitelist:{registry}:capacity", s.capacityKey)
	assert.Equal(t, "whitelist:{registry}:members", s.membersKey)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
