package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"lotledger/internal/infra/blob"
)

// fakeBucket serves the subset of the S3 REST API the store uses.
type fakeBucket struct {
	mu       sync.Mutex
	objects  map[string]fakeObject
	pageSize int
	requests []string
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: make(map[string]fakeObject), pageSize: 1000}
}

func respond(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: header, ContentLength: int64(len(body))}
}

func (f *fakeBucket) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Path style: /<bucket>/<key>
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	f.requests = append(f.requests, req.Method+" "+key)

	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return f.list(req), nil
	}
	switch req.Method {
	case http.MethodHead:
		obj, ok := f.objects[key]
		if !ok {
			return respond(http.StatusNotFound, "", nil), nil
		}
		h := f.headers(obj)
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Header: h}, nil
	case http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			return respond(http.StatusNotFound, `<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`, http.Header{"Content-Type": {"application/xml"}}), nil
		}
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(obj.body)), Header: f.headers(obj), ContentLength: int64(len(obj.body))}, nil
	case http.MethodPut:
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") || req.Header.Get("X-Amz-Decoded-Content-Length") != "" {
			raw = decodeAWSChunked(raw)
		}
		md := map[string]string{}
		for name, values := range req.Header {
			if lower := strings.ToLower(name); strings.HasPrefix(lower, "x-amz-meta-") {
				md[strings.TrimPrefix(lower, "x-amz-meta-")] = values[0]
			}
		}
		f.objects[key] = fakeObject{body: raw, contentType: req.Header.Get("Content-Type"), metadata: md}
		return respond(http.StatusOK, "", http.Header{"Etag": {`"etag"`}}), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return respond(http.StatusNoContent, "", nil), nil
	}
	return respond(http.StatusNotImplemented, "", nil), nil
}

func (f *fakeBucket) headers(obj fakeObject) http.Header {
	h := http.Header{
		"Content-Length": {strconv.Itoa(len(obj.body))},
		"Content-Type":   {obj.contentType},
		"Etag":           {`"etag-` + strconv.Itoa(len(obj.body)) + `"`},
		"Last-Modified":  {time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC).Format(http.TimeFormat)},
	}
	for k, v := range obj.metadata {
		h.Set("X-Amz-Meta-"+k, v)
	}
	return h
}

func (f *fakeBucket) list(req *http.Request) *http.Response {
	q := req.URL.Query()
	prefix, token := q.Get("prefix"), q.Get("continuation-token")
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	start := 0
	if token != "" {
		start, _ = strconv.Atoi(token)
	}
	end := min(start+f.pageSize, len(keys))
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult>`)
	if end < len(keys) {
		fmt.Fprintf(&b, "<IsTruncated>true</IsTruncated><NextContinuationToken>%d</NextContinuationToken>", end)
	} else {
		b.WriteString("<IsTruncated>false</IsTruncated>")
	}
	for _, k := range keys[start:end] {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><ETag>&quot;e&quot;</ETag><LastModified>2026-10-19T09:30:00Z</LastModified></Contents>", k, len(f.objects[k].body))
	}
	b.WriteString("</ListBucketResult>")
	return respond(http.StatusOK, b.String(), http.Header{"Content-Type": {"application/xml"}})
}

// decodeAWSChunked strips aws-chunked framing: <hex-size>[;ext]\r\n<data>\r\n
// repeated until a zero-size chunk, followed by optional trailers.
func decodeAWSChunked(b []byte) []byte {
	var out []byte
	for len(b) > 0 {
		i := bytes.Index(b, []byte("\r\n"))
		if i < 0 {
			break
		}
		sizeField, _, _ := strings.Cut(string(b[:i]), ";")
		size, err := strconv.ParseInt(strings.TrimSpace(sizeField), 16, 64)
		if err != nil || size == 0 {
			break
		}
		b = b[i+2:]
		if int64(len(b)) < size {
			break
		}
		out = append(out, b[:size]...)
		b = bytes.TrimPrefix(b[size:], []byte("\r\n"))
	}
	return out
}

func newFakeStore(t *testing.T, prefix string) (*Store, *fakeBucket) {
	t.Helper()
	bucket := newFakeBucket()
	store, err := New(context.Background(), Config{
		Bucket:         "custody",
		Region:         "eu-central-1",
		Endpoint:       "https://s3.test.local",
		Prefix:         prefix,
		AccessKey:      "AKIDTEST",
		SecretKey:      "secret",
		ForcePathStyle: true,
		HTTPClient:     bucket,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store, bucket
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store, bucket := newFakeStore(t, "ledger/")
	if store.Driver() != blob.DriverS3 {
		t.Fatalf("unexpected driver")
	}

	info, err := store.Put(ctx, "reports/LAB-1/a.json", strings.NewReader(`{"lot":"LAB-1"}`), blob.PutOptions{ContentType: "application/json", Metadata: map[string]string{"batch_number": "LAB-1"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "reports/LAB-1/a.json" || info.Size != 15 || info.ContentType != "application/json" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, ok := bucket.objects["ledger/reports/LAB-1/a.json"]; !ok {
		t.Fatalf("object not stored under prefix: %v", bucket.requests)
	}
	if _, err := store.Put(ctx, "reports/LAB-1/a.json", strings.NewReader("x"), blob.PutOptions{}); !errors.Is(err, blob.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	got, rc, err := store.Get(ctx, "reports/LAB-1/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != `{"lot":"LAB-1"}` || got.Metadata["batch_number"] != "LAB-1" {
		t.Fatalf("unexpected object %+v %q", got, data)
	}

	if _, _, err := store.Get(ctx, "reports/none.json"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
	if _, err := store.Head(ctx, "reports/none.json"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}

	ok, err := store.Delete(ctx, "reports/LAB-1/a.json")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "reports/LAB-1/a.json"); err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
}

func TestStoreListPaginates(t *testing.T) {
	ctx := context.Background()
	store, bucket := newFakeStore(t, "")
	bucket.pageSize = 2
	for _, k := range []string{"reports/A/1", "reports/A/2", "reports/A/3", "reports/B/1"} {
		if _, err := store.Put(ctx, k, strings.NewReader(k), blob.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, err := store.List(ctx, "reports/A/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].Key != "reports/A/1" || list[2].Key != "reports/A/3" || list[0].Size != 11 {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestStorePresignGet(t *testing.T) {
	store, _ := newFakeStore(t, "p")
	u, err := store.PresignGet(context.Background(), "reports/x.csv", time.Minute)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(u, "/custody/p/reports/x.csv") || !strings.Contains(u, "X-Amz-Expires=60") {
		t.Fatalf("unexpected url %s", u)
	}
}

func TestStoreRejectsInvalidKey(t *testing.T) {
	store, bucket := newFakeStore(t, "")
	if _, err := store.Put(context.Background(), "../x", strings.NewReader(""), blob.PutOptions{}); !errors.Is(err, blob.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if len(bucket.requests) != 0 {
		t.Fatalf("invalid key reached the bucket: %v", bucket.requests)
	}
}
