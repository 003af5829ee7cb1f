package attrs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKV_String(t *testing.T) {
	kv := KV{"subject_id", "s-1", "count", 3, 42, "ignored", "subject_id", "s-2", "dangling"}

	assert.Equal(t, "s-2", kv.String("subject_id"), "later pairs win")
	assert.Empty(t, kv.String("count"), "non-string values are skipped")
	assert.Empty(t, kv.String("dangling"))
	assert.Empty(t, kv.String("missing"))
	assert.Equal(t, "s-2", ExtractString([]any(kv), "subject_id"))
}
