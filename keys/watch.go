// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package keys

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settle is how long the file has to be quiet before it is reloaded.
// Editors tend to write a file in several steps.
var settle = 100 * time.Millisecond

// Watch reloads the Store whenever its file is written or created, until
// ctx is done. The directory is watched, not the file, so replacing the
// file by rename is seen as well.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watching %s: %w", s.file, err)
	}
	defer w.Close()

	file := filepath.Clean(s.file)
	if err := w.Add(filepath.Dir(file)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(file), err)
	}

	t := time.AfterFunc(time.Hour, func() {
		if err := s.Reload(); err != nil {
			log.Printf("keys: %v", err)
			return
		}
		log.Printf("keys: reloaded %s, %d keys", s.file, s.Len())
	})
	t.Stop()
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if filepath.Clean(ev.Name) != file {
				continue
			}
			v("keys: %v", ev)
			t.Reset(settle)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("keys: watch %s: %v", s.file, err)
		}
	}
}
