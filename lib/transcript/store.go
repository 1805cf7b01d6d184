// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/bureau-foundation/converse/lib/clock"
	"github.com/bureau-foundation/converse/lib/codec"
)

// fileExtension marks zstd-compressed CBOR.
const fileExtension = ".cbor.zst"

// validID restricts session IDs to names that are safe as a single
// path component.
var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ErrInvalidID reports a session ID that cannot be used as a file name.
var ErrInvalidID = errors.New("transcript: invalid session id")

// Store keeps one transcript file per session in a directory.
type Store struct {
	directory string
	clock     clock.Clock
}

// NewStore returns a store rooted at directory. The directory is
// created on the first Save. A nil clock uses the real clock.
func NewStore(directory string, clk clock.Clock) *Store {
	return &Store{directory: directory, clock: clock.OrReal(clk)}
}

// Now returns the store's current time, for stamping new records.
func (store *Store) Now() time.Time {
	return store.clock.Now()
}

// Path returns the file that holds session id.
func (store *Store) Path(id string) (string, error) {
	if !validID.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(store.directory, id+fileExtension), nil
}

// Load reads session id. A session that has never been saved yields a
// new, empty transcript.
func (store *Store) Load(id string) (*Transcript, error) {
	path, err := store.Path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(id, store.clock.Now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}

	var transcript Transcript
	if err := codec.UnmarshalCompressed(data, &transcript); err != nil {
		return nil, fmt.Errorf("parsing transcript %s: %w", path, err)
	}
	if transcript.Version > formatVersion {
		return nil, fmt.Errorf("transcript %s has format version %d, this build reads up to %d",
			path, transcript.Version, formatVersion)
	}
	if transcript.ID != id {
		return nil, fmt.Errorf("transcript %s belongs to session %q", path, transcript.ID)
	}
	return &transcript, nil
}

// Save writes the transcript atomically: a temporary file in the same
// directory is written, synced, and renamed into place, so a reader
// (or a crash) never sees a partial file. Files are mode 0600.
func (store *Store) Save(transcript *Transcript) error {
	path, err := store.Path(transcript.ID)
	if err != nil {
		return err
	}
	transcript.Version = formatVersion
	data, err := codec.MarshalCompressed(transcript)
	if err != nil {
		return fmt.Errorf("encoding transcript: %w", err)
	}

	if err := os.MkdirAll(store.directory, 0o700); err != nil {
		return fmt.Errorf("creating transcript directory: %w", err)
	}
	file, err := os.CreateTemp(store.directory, transcript.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary transcript file: %w", err)
	}
	temporaryPath := file.Name()

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary transcript file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary transcript file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary transcript file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming transcript into place: %w", err)
	}

	if directory, err := os.Open(store.directory); err == nil {
		directory.Sync()
		directory.Close()
	}
	return nil
}
