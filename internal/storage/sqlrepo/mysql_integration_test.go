//go:build integration

package sqlrepo_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"review_radar/internal/domain"
	"review_radar/internal/storage/sqlrepo"
)

func TestRepo_MySQL_ReplaceAndLoad(t *testing.T) {
	// Start isolated MySQL; let Docker pick a free host port.
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}

	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=review_radar",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/review_radar?parseTime=true&charset=utf8mb4&loc=UTC",
		resource.GetPort("3306/tcp"))

	if err := pool.Retry(func() error {
		db, e := sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		defer db.Close()
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}

	ctx := context.Background()
	repo, err := sqlrepo.Open(ctx, sqlrepo.MySQL, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	rs := []domain.Review{
		{ID: "1", Platform: "macOS", Title: "闪退", Content: "打开就闪退", Rating: 1, Timestamp: "2024-01-15 10:30:00"},
		{ID: "2", Platform: "douban_comments", Content: "很好看", Rating: 5, Votes: 120},
	}
	if err := repo.SaveReviews(ctx, rs); err != nil {
		t.Fatalf("SaveReviews: %v", err)
	}
	if err := repo.SaveReviews(ctx, rs[:1]); err != nil {
		t.Fatalf("SaveReviews (replace): %v", err)
	}
	got, err := repo.LoadReviews(ctx)
	if err != nil {
		t.Fatalf("LoadReviews: %v", err)
	}
	if len(got) != 1 || got[0].Content != "打开就闪退" {
		t.Fatalf("unexpected reviews after replace: %+v", got)
	}

	snap := domain.Snapshot{RunID: "r1", GeneratedAt: time.Now().UTC(), Scopes: []string{"macOS"}}
	if err := repo.SaveAnalysis(ctx, snap); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}
	back, err := repo.LoadAnalysis(ctx)
	if err != nil || back.RunID != "r1" {
		t.Fatalf("LoadAnalysis: %v %+v", err, back)
	}
}
