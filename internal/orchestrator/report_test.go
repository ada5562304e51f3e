// internal/orchestrator/report_test.go
package orchestrator

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
)

func TestMultiOutputPath(t *testing.T) {
	tests := []struct {
		base  string
		i     int
		total int
		want  string
	}{
		{"cat.png", 1, 1, "cat.png"},
		{"cat.png", 7, 1, "cat.png"},
		{"cat.png", 1, 3, "cat-1.png"},
		{"cat.png", 3, 3, "cat-3.png"},
		{"out/archive.tar.gz", 2, 2, "out/archive.tar-2.gz"},
		{"noext", 2, 4, "noext-2"},
		{filepath.Join("dir.v2", "img"), 1, 2, filepath.Join("dir.v2", "img-1")},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d-of-%d", tt.base, tt.i, tt.total), func(t *testing.T) {
			assert.Equal(t, tt.want, MultiOutputPath(tt.base, tt.i, tt.total))
		})
	}
}

func TestMultiOutputPath_Injective(t *testing.T) {
	for _, base := range []string{"cat.png", "a-1.png", "noext", "x/y.z.jpg"} {
		seen := make(map[string]int)
		for i := 1; i <= 25; i++ {
			p := MultiOutputPath(base, i, 25)
			prev, dup := seen[p]
			require.False(t, dup, "attempts %d and %d share %q", prev, i, p)
			seen[p] = i
		}
	}
}

func TestReport_JSON(t *testing.T) {
	r := &Report{
		Prompt: "a cat",
		Results: []Result{
			succeeded(1, "cat-1.png"),
			failed(2, "cat-2.png", &schemas.GenerationTimeoutError{}),
		},
	}
	data, err := r.JSON()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	results := decoded["results"].([]interface{})
	require.Len(t, results, 2)

	first := results[0].(map[string]interface{})
	assert.Equal(t, "succeeded", first["status"])
	assert.NotContains(t, first, "error")

	second := results[1].(map[string]interface{})
	assert.Equal(t, "generation_timeout", second["kind"])
	assert.NotEmpty(t, second["hint"])
	assert.NotContains(t, second, "Err")

	assert.Equal(t, []string{"cat-1.png"}, r.Paths())
	assert.IsType(t, &schemas.GenerationTimeoutError{}, r.LastError())
}
