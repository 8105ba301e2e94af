package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/finbot/internal/models"
)

func TestBuildRoutingRule(t *testing.T) {
	primary := &models.AnalysisResult{DocumentID: "abc"}

	tests := []struct {
		name     string
		tc       ThreadContext
		endpoint Endpoint
		wantIDs  []string
		wantErr  error
	}{
		{
			name:     "one document with primary",
			tc:       ThreadContext{ThreadID: "t", DocumentIDs: []string{"abc"}, Primary: primary},
			endpoint: EndpointSingle,
			wantIDs:  []string{"abc"},
		},
		{
			name:     "two documents",
			tc:       ThreadContext{ThreadID: "t", DocumentIDs: []string{"abc", "def"}, Primary: primary},
			endpoint: EndpointMulti,
			wantIDs:  []string{"abc", "def"},
		},
		{
			name:     "no documents and no files",
			tc:       ThreadContext{ThreadID: "t"},
			endpoint: EndpointMulti,
			wantIDs:  []string{},
		},
		{
			name:     "one document without primary",
			tc:       ThreadContext{ThreadID: "t", DocumentIDs: []string{"abc"}},
			endpoint: EndpointMulti,
			wantIDs:  []string{"abc"},
		},
		{
			name:    "files selected but nothing uploaded",
			tc:      ThreadContext{ThreadID: "t", HasLocalFiles: true},
			wantErr: ErrNeedsUpload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route, err := Build(tt.tc, "What are the top transactions?")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.endpoint, route.Endpoint)
			if route.Endpoint == EndpointSingle {
				assert.Equal(t, tt.wantIDs[0], route.Single.DocumentID)
				assert.Equal(t, "What are the top transactions?", route.Single.Question)
			} else {
				assert.Equal(t, tt.wantIDs, route.Multi.DocumentIDs)
				assert.Equal(t, "What are the top transactions?", route.Multi.Question)
			}
		})
	}
}

func TestBuildRejectsEmptyQuestion(t *testing.T) {
	_, err := Build(ThreadContext{}, "")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestBuildCopiesIDs(t *testing.T) {
	ids := []string{"a", "b"}
	route, err := Build(ThreadContext{DocumentIDs: ids}, "q")
	require.NoError(t, err)
	ids[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, route.Multi.DocumentIDs)
}
