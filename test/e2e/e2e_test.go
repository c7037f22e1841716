//go:build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sourcePayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	ChunkCount *int   `json:"chunk_count"`
}

type createPayload struct {
	Source  sourcePayload `json:"source"`
	Outcome struct {
		Processed  int    `json:"processed"`
		Succeeded  int    `json:"success"`
		ChunkCount int    `json:"chunk_count"`
		Status     string `json:"status"`
	} `json:"outcome"`
}

type searchPayload struct {
	Results []struct {
		FileName string  `json:"file_name"`
		Text     string  `json:"text"`
		Score    float64 `json:"score"`
	} `json:"results"`
	Total int `json:"total"`
}

func createSource(t *testing.T, env *E2ETestEnv, token, name string) createPayload {
	resp, err := env.Post("/sources", map[string]string{
		"name":        name,
		"description": "e2e test source",
		"source_type": "onedrive",
		"path":        "/docs",
	}, token)
	require.NoError(t, err)

	var created createPayload
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	return created
}

func TestE2E_AuthFlow(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	token := env.RegisterUser("alice@example.com", "Alice")
	assert.True(t, strings.HasPrefix(token, "kb_"))

	t.Run("duplicate registration rejected", func(t *testing.T) {
		_, err := env.Post("/auth/register", map[string]string{"email": "alice@example.com"}, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "409")
	})

	t.Run("token grants access", func(t *testing.T) {
		_, err := env.Get("/sources", token)
		assert.NoError(t, err)
	})

	t.Run("rotation invalidates old token", func(t *testing.T) {
		resp, err := env.Post("/auth/token", map[string]string{"email": "alice@example.com"}, "")
		require.NoError(t, err)

		var data struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &data))
		require.NotEqual(t, token, data.Token)

		_, err = env.Get("/sources", data.Token)
		assert.NoError(t, err)

		_, err = env.Get("/sources", token)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})
}

func TestE2E_SourceLifecycle(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	token := env.RegisterUser("alice@example.com", "Alice")

	env.Origin.SetFile("f-1", "launch.txt", "/docs/launch.txt",
		[]byte("Launch checklist: confirm rollout plan and notify stakeholders before release."))
	env.Origin.SetFile("f-2", "handbook.txt", "/docs/hr/handbook.txt",
		[]byte("Vacation policy: employees accrue vacation days monthly and may carry over ten days."))
	env.Origin.SetFile("f-3", "finance.txt", "/docs/finance.txt",
		[]byte("Quarterly revenue summary with forecast assumptions for the finance review."))

	var sourceID string

	t.Run("create ingests all files", func(t *testing.T) {
		created := createSource(t, env, token, "company-docs")
		sourceID = created.Source.ID

		assert.NotEmpty(t, sourceID)
		assert.Equal(t, "ready", created.Source.Status)
		assert.Equal(t, 3, created.Outcome.Processed)
		assert.Equal(t, 3, created.Outcome.Succeeded)
		assert.Equal(t, 3, created.Outcome.ChunkCount)
	})

	t.Run("duplicate name rejected", func(t *testing.T) {
		_, err := env.Post("/sources", map[string]string{
			"name":        "company-docs",
			"description": "again",
			"source_type": "onedrive",
			"path":        "/docs",
		}, token)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "409")
	})

	t.Run("get reports chunk count", func(t *testing.T) {
		resp, err := env.Get("/sources/"+sourceID, token)
		require.NoError(t, err)

		var source sourcePayload
		require.NoError(t, json.Unmarshal(resp.Data, &source))
		assert.Equal(t, "company-docs", source.Name)
		require.NotNil(t, source.ChunkCount)
		assert.Equal(t, 3, *source.ChunkCount)
	})

	t.Run("search ranks the relevant file first", func(t *testing.T) {
		resp, err := env.Post("/search", map[string]interface{}{
			"knowledge_source_id": sourceID,
			"query":               "vacation policy days",
			"limit":               3,
		}, token)
		require.NoError(t, err)

		var out searchPayload
		require.NoError(t, json.Unmarshal(resp.Data, &out))
		require.NotEmpty(t, out.Results)
		assert.Equal(t, "handbook.txt", out.Results[0].FileName)
		assert.Contains(t, out.Results[0].Text, "Vacation policy")
	})

	t.Run("refresh picks up origin changes", func(t *testing.T) {
		env.Origin.SetFile("f-4", "onboarding.txt", "/docs/onboarding.txt",
			[]byte("Onboarding guide: new hires complete security training in week one."))
		env.Origin.RemoveFile("f-3")

		resp, err := env.Post(fmt.Sprintf("/sources/%s/refresh", sourceID), nil, token)
		require.NoError(t, err)

		var outcome struct {
			Processed  int `json:"processed"`
			ChunkCount int `json:"chunk_count"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &outcome))
		assert.Equal(t, 3, outcome.Processed)
		assert.Equal(t, 3, outcome.ChunkCount)

		searchResp, err := env.Post("/search", map[string]interface{}{
			"knowledge_source_id": sourceID,
			"query":               "onboarding security training",
		}, token)
		require.NoError(t, err)

		var out searchPayload
		require.NoError(t, json.Unmarshal(searchResp.Data, &out))
		require.NotEmpty(t, out.Results)
		assert.Equal(t, "onboarding.txt", out.Results[0].FileName)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		resp, err := env.Delete("/sources/by-name/company-docs", token)
		require.NoError(t, err)

		var outcome struct {
			Found bool `json:"found"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &outcome))
		assert.True(t, outcome.Found)

		resp, err = env.Delete("/sources/by-name/company-docs", token)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(resp.Data, &outcome))
		assert.False(t, outcome.Found)

		var count int
		require.NoError(t, env.Pool.QueryRow(env.Ctx,
			"SELECT COUNT(*) FROM embedded_chunks WHERE knowledge_source_id = $1", sourceID).Scan(&count))
		assert.Equal(t, 0, count)
	})
}

func TestE2E_Sharing(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	aliceToken := env.RegisterUser("alice@example.com", "Alice")
	bobToken := env.RegisterUser("bob@example.com", "Bob")

	env.Origin.SetFile("f-1", "roadmap.txt", "/docs/roadmap.txt",
		[]byte("Product roadmap priorities for the second half of the year."))

	created := createSource(t, env, aliceToken, "roadmap")
	sourceID := created.Source.ID

	searchBody := map[string]interface{}{
		"knowledge_source_id": sourceID,
		"query":               "roadmap priorities",
	}

	t.Run("stranger cannot search", func(t *testing.T) {
		_, err := env.Post("/search", searchBody, bobToken)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "403")
	})

	t.Run("read grant allows search but not refresh", func(t *testing.T) {
		_, err := env.Post(fmt.Sprintf("/sources/%s/share", sourceID), map[string]string{
			"user_email":   "bob@example.com",
			"access_level": "read",
		}, aliceToken)
		require.NoError(t, err)

		resp, err := env.Post("/search", searchBody, bobToken)
		require.NoError(t, err)

		var out searchPayload
		require.NoError(t, json.Unmarshal(resp.Data, &out))
		assert.NotEmpty(t, out.Results)

		_, err = env.Post(fmt.Sprintf("/sources/%s/refresh", sourceID), nil, bobToken)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "403")
	})

	t.Run("write grant allows refresh", func(t *testing.T) {
		_, err := env.Post(fmt.Sprintf("/sources/%s/share", sourceID), map[string]string{
			"user_email":   "bob@example.com",
			"access_level": "write",
		}, aliceToken)
		require.NoError(t, err)

		_, err = env.Post(fmt.Sprintf("/sources/%s/refresh", sourceID), nil, bobToken)
		assert.NoError(t, err)
	})

	t.Run("only the owner may share", func(t *testing.T) {
		_, err := env.Post(fmt.Sprintf("/sources/%s/share", sourceID), map[string]string{
			"user_email": "carol@example.com",
		}, bobToken)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "403")
	})

	t.Run("shared source appears in grantee listing", func(t *testing.T) {
		resp, err := env.Get("/sources", bobToken)
		require.NoError(t, err)

		var list struct {
			Items []sourcePayload `json:"items"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &list))
		require.Len(t, list.Items, 1)
		assert.Equal(t, "roadmap", list.Items[0].Name)
	})
}
