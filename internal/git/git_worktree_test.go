package git

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestInWorktree_IndependentMutex(t *testing.T) {
	tmpDir := setupTestRepo(t)
	g, _ := New(tmpDir, DefaultConfig())

	baseBranch, _ := g.GetCurrentBranch()
	worktreePath, err := g.CreateWorktree("TASK-MUTEX", baseBranch)
	if err != nil {
		t.Fatalf("CreateWorktree() failed: %v", err)
	}
	defer func() { _ = g.CleanupWorktree("TASK-MUTEX") }()

	// Get worktree Git instance
	wtGit := g.InWorktree(worktreePath)

	// Create file in worktree
	testFile := filepath.Join(worktreePath, "mutex-test.txt")
	_ = os.WriteFile(testFile, []byte("test"), 0644)

	// Both instances should be able to work independently
	// (they have separate mutexes)
	done := make(chan error, 2)

	// Parent Git instance
	go func() {
		// Create a file in main repo
		mainFile := filepath.Join(tmpDir, "main-test.txt")
		_ = os.WriteFile(mainFile, []byte("main content"), 0644)
		_, err := g.CreateCheckpoint("TASK-MUTEX-MAIN", "implement", "main change")
		done <- err
	}()

	// Worktree Git instance
	go func() {
		_, err := wtGit.CreateCheckpoint("TASK-MUTEX", "implement", "worktree change")
		done <- err
	}()

	// Both should complete without deadlock
	for i := 0; i < 2; i++ {
		err := <-done
		if err != nil {
			// Errors are expected (different directories), just verify no deadlock
			t.Logf("Expected error (different contexts): %v", err)
		}
	}
}

// TestCleanupWorktreeAtPath tests path-based worktree cleanup
func TestCleanupWorktreeAtPath(t *testing.T) {
	tmpDir := setupTestRepo(t)
	g, _ := New(tmpDir, DefaultConfig())

	// Get current branch to use as base
	baseBranch, _ := g.GetCurrentBranch()

	// Create worktree
	worktreePath, err := g.CreateWorktree("TASK-PATH-001", baseBranch)
	if err != nil {
		t.Fatalf("CreateWorktree() failed: %v", err)
	}

	// Verify worktree exists
	if _, err := os.Stat(worktreePath); os.IsNotExist(err) {
		t.Errorf("worktree not created at %s", worktreePath)
	}

	// Cleanup using path-based method
	err = g.CleanupWorktreeAtPath(worktreePath)
	if err != nil {
		t.Fatalf("CleanupWorktreeAtPath() failed: %v", err)
	}

	// Verify worktree removed
	if _, err := os.Stat(worktreePath); !os.IsNotExist(err) {
		t.Error("worktree should be removed after CleanupWorktreeAtPath")
	}
}

// TestCleanupWorktreeAtPath_EmptyPath tests CleanupWorktreeAtPath with empty path
func TestCleanupWorktreeAtPath_EmptyPath(t *testing.T) {
	tmpDir := setupTestRepo(t)
	g, _ := New(tmpDir, DefaultConfig())

	// Empty path should return nil (nothing to clean up)
	err := g.CleanupWorktreeAtPath("")
	if err != nil {
		t.Errorf("CleanupWorktreeAtPath('') should return nil, got: %v", err)
	}
}

// TestConcurrentCheckpoints tests that CreateCheckpoint is protected by mutex
// when called concurrently from multiple goroutines.
func TestConcurrentCheckpoints(t *testing.T) {
	tmpDir := setupTestRepo(t)
	baseGit, _ := New(tmpDir, DefaultConfig())
	// Use InWorktree to mark as worktree context (CreateCheckpoint requires this)
	g := baseGit.InWorktree(tmpDir)

	_ = g.CreateBranch("TASK-CONCURRENT")

	// Create multiple files for concurrent commits
	const numGoroutines = 5
	done := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(idx int) {
			// Create a unique file for this goroutine
			testFile := filepath.Join(tmpDir, fmt.Sprintf("concurrent-%d.txt", idx))
			_ = os.WriteFile(testFile, []byte(fmt.Sprintf("content %d", idx)), 0644)

			// Create checkpoint - mutex should ensure atomicity
			_, err := g.CreateCheckpoint("TASK-CONCURRENT", "implement", fmt.Sprintf("change %d", idx))
			done <- err
		}(i)
	}

	// Wait for all goroutines to complete
	var errors []error
	for i := 0; i < numGoroutines; i++ {
		if err := <-done; err != nil {
			errors = append(errors, err)
		}
	}

	// With mutex protection, all checkpoints should succeed
	// (they serialize access to the git operations)
	if len(errors) > 0 {
		t.Errorf("CreateCheckpoint() concurrent calls failed: %v", errors)
	}
}
