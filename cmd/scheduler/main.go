// Copyright (c) 2014 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/couchbase/task-scheduler/adminport"
	"github.com/couchbase/task-scheduler/content"
	"github.com/couchbase/task-scheduler/indexmap"
	"github.com/couchbase/task-scheduler/scheduler"
	"github.com/couchbase/task-scheduler/store"
)

func main() {
	dataDir := flag.String("dataDir", "./data", "Task store directory path")
	contentDir := flag.String("contentDir", "./content", "Content file store directory path")
	adminAddr := flag.String("adminAddr", ":9200", "Admin port listen address")
	autobatching := flag.Bool("autobatching", true, "Enable autobatching of same-index tasks")
	logLevel := flag.String("logLevel", "info", "Log level - debug, info, warn, error")
	flag.Parse()

	log, err := newLogger(*logLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("task-scheduler starting", zap.Strings("args", os.Args))

	taskStore, err := store.Open(*dataDir)
	if err != nil {
		log.Fatal("opening task store", zap.Error(err))
	}
	defer taskStore.Close()

	contentStore, err := content.Open(*contentDir)
	if err != nil {
		log.Fatal("opening content store", zap.Error(err))
	}

	mapper := indexmap.New()

	sched := scheduler.New(taskStore, contentStore, mapper, log, scheduler.Config{
		AutobatchingEnabled: *autobatching,
	})
	go sched.Run()
	defer sched.Close()

	admin := adminport.New(adminport.Config{
		ListenAddr:   *adminAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}, sched, taskStore, contentStore, log)

	go func() {
		if err := admin.Start(); err != nil && err != http.ErrServerClosed {
			log.Error("admin port stopped", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("task-scheduler shutting down")
	admin.Close()
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	var l zapcore.Level
	if err := l.Set(level); err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(l)
	return cfg.Build()
}
