package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestS3Archive_Key(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		file   string
		want   string
	}{
		{name: "with prefix", prefix: "/uploads/", file: "customers.csv", want: "uploads/u1/b1/customers.csv"},
		{name: "no prefix", prefix: "", file: "customers.csv", want: "u1/b1/customers.csv"},
		{name: "strips path", prefix: "up", file: `C:\Users\me\list.xlsx`, want: "up/u1/b1/list.xlsx"},
		{name: "empty name", prefix: "up", file: "", want: "up/u1/b1/upload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newS3Archive(&fakeS3{}, "bucket", tt.prefix, testLogger())
			got := a.Key(Object{UserID: "u1", BatchID: "b1", FileName: tt.file})
			if got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestS3Archive_Put(t *testing.T) {
	client := &fakeS3{}
	a := newS3Archive(client, "review-uploads", "raw", testLogger())

	key, err := a.Put(context.Background(), Object{
		UserID: "u1", BatchID: "b1", FileName: "c.csv", ContentType: "text/csv", Data: []byte("email\na@b.co\n"),
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if key != "raw/u1/b1/c.csv" {
		t.Errorf("key = %q", key)
	}
	if aws.ToString(client.input.Bucket) != "review-uploads" {
		t.Errorf("Bucket = %q", aws.ToString(client.input.Bucket))
	}
	if aws.ToString(client.input.ContentType) != "text/csv" {
		t.Errorf("ContentType = %q", aws.ToString(client.input.ContentType))
	}
	if string(client.body) != "email\na@b.co\n" {
		t.Errorf("body = %q", client.body)
	}
	if client.input.Metadata["batch_id"] != "b1" {
		t.Errorf("Metadata = %v", client.input.Metadata)
	}
}

func TestS3Archive_PutError(t *testing.T) {
	a := newS3Archive(&fakeS3{err: errors.New("access denied")}, "b", "", testLogger())
	if _, err := a.Put(context.Background(), Object{UserID: "u", BatchID: "b", FileName: "f"}); err == nil {
		t.Error("Put() expected error")
	}
}
