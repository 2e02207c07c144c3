package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/arbagent/internal/domain"
)

const (
	// multipartThreshold is the encoded size above which uploads go through
	// the multipart manager.
	multipartThreshold = 8 * 1024 * 1024
	objectSuffix       = ".json"
)

var contentHashRe = regexp.MustCompile(`^0x[0-9a-f]{64}$`)

// ContentStore implements domain.ContentStore: objects are JSON encoded and
// stored under <prefix><keccak256(json)>.json.
type ContentStore struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	prefix string
	logger *slog.Logger
}

// NewContentStore creates a content store over the given blob writer and
// reader. prefix is prepended to every key (e.g. "plans/").
func NewContentStore(w domain.BlobWriter, r domain.BlobReader, prefix string, logger *slog.Logger) *ContentStore {
	return &ContentStore{
		writer: w,
		reader: r,
		prefix: prefix,
		logger: logger.With(slog.String("component", "content_store")),
	}
}

// ContentHash returns the 0x-prefixed keccak256 of data.
func ContentHash(data []byte) string {
	return ethcrypto.Keccak256Hash(data).Hex()
}

// StoreObject encodes obj and uploads it unless an object with the same hash
// already exists. It returns the content hash.
func (s *ContentStore) StoreObject(ctx context.Context, obj any) (string, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("s3blob: encode object: %w", err)
	}
	hash := ContentHash(data)
	key := s.key(hash)

	exists, err := s.reader.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if exists {
		s.logger.Debug("object already stored", slog.String("hash", hash))
		return hash, nil
	}

	if len(data) > multipartThreshold {
		err = s.writer.PutMultipart(ctx, key, bytes.NewReader(data), minPartSize)
	} else {
		err = s.writer.Put(ctx, key, bytes.NewReader(data), "application/json")
	}
	if err != nil {
		return "", err
	}

	s.logger.Info("object stored", slog.String("hash", hash), slog.Int("bytes", len(data)))
	return hash, nil
}

// Load returns the raw bytes stored under hash.
func (s *ContentStore) Load(ctx context.Context, hash string) ([]byte, error) {
	hash = strings.ToLower(hash)
	if !contentHashRe.MatchString(hash) {
		return nil, fmt.Errorf("s3blob: %w: malformed content hash %q", domain.ErrInvalidInput, hash)
	}
	body, err := s.reader.Get(ctx, s.key(hash))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: read %s: %w", hash, err)
	}
	return data, nil
}

// List returns the hashes of stored objects, newest first.
func (s *ContentStore) List(ctx context.Context, limit int) ([]domain.BlobInfo, error) {
	infos, err := s.reader.List(ctx, s.prefix)
	if err != nil {
		return nil, err
	}
	out := make([]domain.BlobInfo, 0, len(infos))
	for _, info := range infos {
		name := strings.TrimSuffix(strings.TrimPrefix(info.Path, s.prefix), objectSuffix)
		if !contentHashRe.MatchString(name) {
			continue
		}
		info.Path = name
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastModified.After(out[j].LastModified)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ContentStore) key(hash string) string {
	return s.prefix + hash + objectSuffix
}
