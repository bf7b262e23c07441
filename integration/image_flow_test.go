package integration

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadPNG(t *testing.T, ts *TestServer, token string, w, h int) (key string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("image", "test.png")
	require.NoError(t, err)
	_, err = part.Write(buf.Bytes())
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req, err := http.NewRequest("POST", ts.URL+"/api/images", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Key    string `json:"key"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	}
	ReadJSON(t, resp, &result)
	require.Len(t, result.Key, 64)
	return result.Key
}

func TestImageFlow_UploadAttachDetach(t *testing.T) {
	ts := NewTestServer(t, Options{})
	token, _ := ts.Login(t, UniqueID("collector"), "pass1234")

	key := uploadPNG(t, ts, token, 40, 30)

	// Identical content deduplicates to the same key.
	assert.Equal(t, key, uploadPNG(t, ts, token, 40, 30))

	resp := ts.Get(t, "/api/images/"+key, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var blob struct {
		Base64 string `json:"base64"`
		Width  int    `json:"width"`
	}
	ReadJSON(t, resp, &blob)
	assert.NotEmpty(t, blob.Base64)
	assert.Equal(t, 40, blob.Width)

	resp = ts.PostJSON(t, "/api/wardrobe/user/slots/headwear/images", map[string]string{
		"tag": "front", "key": key,
	}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Deleting a referenced blob is refused.
	resp = ts.Delete(t, "/api/images/"+key, nil, token)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = ts.PostJSON(t, "/api/wardrobe/user/slots/headwear/images/front/activate", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.Put(t, "/api/wardrobe/user/slots/headwear/images/front/size", map[string]int{
		"width": 20, "height": 15,
	}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.Put(t, "/api/wardrobe/user/slots/headwear/images/front/hidden", map[string]bool{
		"hidden": true,
	}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Detaching the last reference sweeps the blob.
	var detach struct {
		BlobRemoved bool `json:"blob_removed"`
	}
	resp = ts.Delete(t, "/api/wardrobe/user/slots/headwear/images/front", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ReadJSON(t, resp, &detach)
	assert.True(t, detach.BlobRemoved)

	resp = ts.Get(t, "/api/images/"+key, token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestImageFlow_SharedBlobSurvivesDetach(t *testing.T) {
	ts := NewTestServer(t, Options{})
	token, _ := ts.Login(t, UniqueID("collector"), "pass1234")

	key := uploadPNG(t, ts, token, 16, 16)

	for _, slot := range []string{"headwear", "topwear"} {
		resp := ts.PostJSON(t, "/api/wardrobe/user/slots/"+slot+"/images", map[string]string{
			"tag": "shared", "key": key,
		}, token)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	var detach struct {
		BlobRemoved bool `json:"blob_removed"`
	}
	resp := ts.Delete(t, "/api/wardrobe/user/slots/headwear/images/shared", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ReadJSON(t, resp, &detach)
	assert.False(t, detach.BlobRemoved, "blob still referenced by topwear")

	resp = ts.Get(t, "/api/images/"+key, token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminEndpoints(t *testing.T) {
	ts := NewTestServer(t, Options{})
	token, _ := ts.Login(t, UniqueID("admin"), "pass1234")
	ts.CreateCharacter(t, token, UniqueID("Rin"))

	get := func(path, adminKey string) *http.Response {
		req, err := http.NewRequest("GET", ts.URL+path, nil)
		require.NoError(t, err)
		if adminKey != "" {
			req.Header.Set("X-Admin-Key", adminKey)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := get("/api/admin/metrics", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	var metrics struct {
		Characters  int64 `json:"characters"`
		DirtyOwners int   `json:"dirty_owners"`
	}
	resp = get("/api/admin/metrics", AdminKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ReadJSON(t, resp, &metrics)
	assert.EqualValues(t, 1, metrics.Characters)

	var owners struct {
		Owners []string `json:"owners"`
	}
	resp = get("/api/admin/owners", AdminKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ReadJSON(t, resp, &owners)
	assert.Contains(t, owners.Owners, "user")
}
