package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/self21/self21ctl/pkg/config"
	"github.com/self21/self21ctl/pkg/engine"
	"github.com/self21/self21ctl/pkg/logging"
)

// fakeEngine records calls in order and can fail any step.
type fakeEngine struct {
	calls []string

	pingErr  error
	multiErr error
	buildErr error
	tagErr   error
	pushErr  func(ref string) error

	builds []engine.Request
	tags   [][2]string
	pushes []string
}

func (f *fakeEngine) Ping(ctx context.Context) error {
	f.calls = append(f.calls, "Ping")
	return f.pingErr
}

func (f *fakeEngine) MultiPlatform(ctx context.Context) error {
	f.calls = append(f.calls, "MultiPlatform")
	return f.multiErr
}

func (f *fakeEngine) Build(ctx context.Context, req engine.Request) (string, error) {
	f.calls = append(f.calls, "Build")
	if f.buildErr != nil {
		return "", f.buildErr
	}
	f.builds = append(f.builds, req)
	return "sha256:fake123", nil
}

func (f *fakeEngine) Tag(ctx context.Context, src, target string) error {
	f.calls = append(f.calls, "Tag")
	if f.tagErr != nil {
		return f.tagErr
	}
	f.tags = append(f.tags, [2]string{src, target})
	return nil
}

func (f *fakeEngine) Push(ctx context.Context, ref string, auth engine.RegistryAuth) error {
	f.calls = append(f.calls, "Push")
	if f.pushErr != nil {
		if err := f.pushErr(ref); err != nil {
			return err
		}
	}
	f.pushes = append(f.pushes, ref)
	return nil
}

// fakeSource shares the engine's call log so ordering across capabilities can
// be asserted.
type fakeSource struct {
	calls *[]string
	dir   string
	head  string

	ensureErr error
	headErr   error
	removeErr error
	removed   bool
}

func (f *fakeSource) Dir() string { return f.dir }

func (f *fakeSource) Ensure(ctx context.Context) error {
	*f.calls = append(*f.calls, "Ensure")
	return f.ensureErr
}

func (f *fakeSource) Head() (string, error) {
	*f.calls = append(*f.calls, "Head")
	if f.headErr != nil {
		return "", f.headErr
	}
	return f.head, nil
}

func (f *fakeSource) Remove() error {
	*f.calls = append(*f.calls, "Remove")
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = true
	return nil
}

func newFakes(t *testing.T) (*fakeEngine, *fakeSource) {
	t.Helper()
	eng := &fakeEngine{}
	src := &fakeSource{
		calls: &eng.calls,
		dir:   filepath.Join(t.TempDir(), "self21"),
		head:  "a1b2c3d",
	}
	return eng, src
}

func newOrchestrator(eng *fakeEngine, src *fakeSource) *Orchestrator {
	return New(Options{
		Engine: eng,
		Source: src,
		Logger: logging.NewDiscardLogger(),
		Now:    func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
}

func TestRun_Defaults(t *testing.T) {
	eng, src := newFakes(t)
	o := newOrchestrator(eng, src)

	result, err := o.Run(context.Background(), config.Default())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(eng.builds) != 1 {
		t.Fatalf("builds = %d, want 1", len(eng.builds))
	}
	wantTags := []string{"self21:latest", "self21:a1b2c3d"}
	if got := eng.builds[0].Tags; len(got) != 2 || got[0] != wantTags[0] || got[1] != wantTags[1] {
		t.Errorf("build tags = %v, want %v", got, wantTags)
	}
	if len(eng.tags) != 0 || len(eng.pushes) != 0 {
		t.Errorf("default run must not tag or push remotely: tags=%v pushes=%v", eng.tags, eng.pushes)
	}
	if src.removed {
		t.Error("default run must not remove the checkout")
	}
	if result.Commit != "a1b2c3d" {
		t.Errorf("commit = %q", result.Commit)
	}
	if result.ImageID != "sha256:fake123" {
		t.Errorf("image ID = %q", result.ImageID)
	}
}

func TestRun_BuildArgs(t *testing.T) {
	eng, src := newFakes(t)
	o := newOrchestrator(eng, src)

	cfg := config.Default()
	cfg.Tag = "v1.2.3"
	if _, err := o.Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run: %v", err)
	}

	args := eng.builds[0].BuildArgs
	if args["VERSION"] != "v1.2.3" {
		t.Errorf("VERSION = %q", args["VERSION"])
	}
	if args["REVISION"] != "a1b2c3d" {
		t.Errorf("REVISION = %q", args["REVISION"])
	}
	if args["BUILD_DATE"] != "2024-06-01T12:00:00Z" {
		t.Errorf("BUILD_DATE = %q, want UTC RFC3339", args["BUILD_DATE"])
	}
}

func TestRun_PushWithoutRegistry(t *testing.T) {
	eng, src := newFakes(t)
	o := newOrchestrator(eng, src)

	cfg := config.Default()
	cfg.Push = true
	_, err := o.Run(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected validation error for push without registry")
	}
	var verrs config.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error type = %T, want ValidationErrors", err)
	}
	if len(eng.calls) != 0 {
		t.Errorf("engine touched despite invalid config: %v", eng.calls)
	}
}

func TestRun_PushAppliesAllFourRefs(t *testing.T) {
	eng, src := newFakes(t)
	o := newOrchestrator(eng, src)

	cfg := config.Default()
	cfg.Registry = "registry.example/self21"
	cfg.Push = true
	result, err := o.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := eng.builds[0].Tags; len(got) != 2 {
		t.Errorf("build tags = %v, want the two local refs", got)
	}
	wantTags := [][2]string{
		{"self21:latest", "registry.example/self21:latest"},
		{"self21:a1b2c3d", "registry.example/self21:a1b2c3d"},
	}
	if len(eng.tags) != 2 || eng.tags[0] != wantTags[0] || eng.tags[1] != wantTags[1] {
		t.Errorf("tag calls = %v, want %v", eng.tags, wantTags)
	}
	wantPushes := []string{"registry.example/self21:latest", "registry.example/self21:a1b2c3d"}
	if len(eng.pushes) != 2 || eng.pushes[0] != wantPushes[0] || eng.pushes[1] != wantPushes[1] {
		t.Errorf("pushes = %v, want %v", eng.pushes, wantPushes)
	}
	if all := result.Refs.All(); len(all) != 4 {
		t.Errorf("refs = %v, want 4 references", all)
	}
	if len(result.Pushed) != 2 {
		t.Errorf("pushed = %v", result.Pushed)
	}
}

func TestRun_RegistryWithoutPushTagsOnly(t *testing.T) {
	eng, src := newFakes(t)
	o := newOrchestrator(eng, src)

	cfg := config.Default()
	cfg.Registry = "registry.example/self21"
	if _, err := o.Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(eng.tags) != 2 {
		t.Errorf("tag calls = %v, want registry tags applied", eng.tags)
	}
	if len(eng.pushes) != 0 {
		t.Errorf("pushes = %v, want none", eng.pushes)
	}
}

func TestRun_PushFailureAbortsBeforeCleanup(t *testing.T) {
	eng, src := newFakes(t)
	eng.pushErr = func(ref string) error {
		if strings.HasSuffix(ref, ":latest") {
			return errors.New("denied")
		}
		return nil
	}
	o := newOrchestrator(eng, src)

	cfg := config.Default()
	cfg.Registry = "registry.example/self21"
	cfg.Push = true
	cfg.Clean = true
	_, err := o.Run(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected push failure to propagate")
	}
	if len(eng.pushes) != 0 {
		t.Errorf("second push attempted after first failed: %v", eng.pushes)
	}
	if src.removed {
		t.Error("checkout removed despite failed run")
	}
}

func TestRun_CleanOnlyOnSuccess(t *testing.T) {
	eng, src := newFakes(t)
	o := newOrchestrator(eng, src)

	cfg := config.Default()
	cfg.Clean = true
	result, err := o.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !src.removed || !result.Cleaned {
		t.Error("expected checkout removal after successful run")
	}

	eng2, src2 := newFakes(t)
	eng2.buildErr = errors.New("build exploded")
	o2 := newOrchestrator(eng2, src2)
	if _, err := o2.Run(context.Background(), cfg); err == nil {
		t.Fatal("expected build error")
	}
	if src2.removed {
		t.Error("checkout removed despite build failure")
	}
}

func TestRun_EngineDownStopsBeforeAcquisition(t *testing.T) {
	eng, src := newFakes(t)
	eng.pingErr = errors.New("daemon down")
	o := newOrchestrator(eng, src)

	if _, err := o.Run(context.Background(), config.Default()); err == nil {
		t.Fatal("expected ping failure")
	}
	for _, call := range eng.calls {
		if call == "Ensure" {
			t.Fatal("source acquired despite unreachable engine")
		}
	}
}

func TestRun_MultiPlatformCheckPrecedesAcquisition(t *testing.T) {
	eng, src := newFakes(t)
	o := newOrchestrator(eng, src)

	cfg := config.Default()
	cfg.Platform = "linux/amd64,linux/arm64"
	cfg.Registry = "registry.example/self21"
	cfg.Push = true
	if _, err := o.Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mpIdx, ensureIdx := -1, -1
	for i, call := range eng.calls {
		switch call {
		case "MultiPlatform":
			mpIdx = i
		case "Ensure":
			ensureIdx = i
		}
	}
	if mpIdx == -1 || ensureIdx == -1 || mpIdx > ensureIdx {
		t.Errorf("buildx check must precede acquisition: %v", eng.calls)
	}
}

func TestRun_MultiPlatformBuildxMissing(t *testing.T) {
	eng, src := newFakes(t)
	eng.multiErr = errors.New("buildx missing")
	o := newOrchestrator(eng, src)

	cfg := config.Default()
	cfg.Platform = "linux/amd64,linux/arm64"
	if _, err := o.Run(context.Background(), cfg); err == nil {
		t.Fatal("expected buildx availability error")
	}
	for _, call := range eng.calls {
		if call == "Ensure" || call == "Build" {
			t.Fatalf("run proceeded without buildx: %v", eng.calls)
		}
	}
}

func TestRun_MultiPlatformPushBuildsRemoteRefs(t *testing.T) {
	eng, src := newFakes(t)
	o := newOrchestrator(eng, src)

	cfg := config.Default()
	cfg.Platform = "linux/amd64,linux/arm64"
	cfg.Registry = "registry.example/self21"
	cfg.Push = true
	result, err := o.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	req := eng.builds[0]
	if !req.Push {
		t.Error("multi-platform push must push from the build itself")
	}
	want := []string{"registry.example/self21:latest", "registry.example/self21:a1b2c3d"}
	if len(req.Tags) != 2 || req.Tags[0] != want[0] || req.Tags[1] != want[1] {
		t.Errorf("build tags = %v, want %v", req.Tags, want)
	}
	for _, call := range eng.calls {
		if call == "Tag" || call == "Push" {
			t.Errorf("separate tag/push step on the multi-platform path: %v", eng.calls)
		}
	}
	if len(result.Pushed) != 2 {
		t.Errorf("pushed = %v", result.Pushed)
	}
}

func TestRun_InvalidPlatform(t *testing.T) {
	eng, src := newFakes(t)
	o := newOrchestrator(eng, src)

	cfg := config.Default()
	cfg.Platform = "linux/quantum"
	if _, err := o.Run(context.Background(), cfg); err == nil {
		t.Fatal("expected platform parse error")
	}
	if len(eng.calls) != 0 {
		t.Errorf("engine touched despite invalid platform: %v", eng.calls)
	}
}

func TestRun_Rerun(t *testing.T) {
	eng, src := newFakes(t)
	o := newOrchestrator(eng, src)

	cfg := config.Default()
	if _, err := o.Run(context.Background(), cfg); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := o.Run(context.Background(), cfg); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(eng.builds) != 2 {
		t.Errorf("builds = %d, want a rebuild on rerun", len(eng.builds))
	}
	if eng.builds[0].Tags[0] != eng.builds[1].Tags[0] {
		t.Errorf("reruns must converge on the same references: %v vs %v",
			eng.builds[0].Tags, eng.builds[1].Tags)
	}
}
