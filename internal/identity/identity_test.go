package identity

import (
	"encoding/hex"
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/uuid"
)

func TestComputeID_Deterministic(t *testing.T) {
	repoID := uuid.NewString()
	first := ComputeID(repoID, ".env.production")
	second := ComputeID(repoID, ".env.production")
	if first != second {
		t.Fatalf("expected identical ids, got %q and %q", first, second)
	}
}

func TestComputeID_KnownVector(t *testing.T) {
	// sha256("repo-1:.env") computed independently; pins the wire contract.
	got := ComputeID("repo-1", ".env")
	want := "36cb9d4f5c164a296f469bd103872e623ceb2396ba3128b085775682b5e4347c"
	if got != want {
		t.Fatalf("ComputeID(repo-1, .env) = %q, want %q", got, want)
	}
}

func TestComputeID_IsHexSHA256(t *testing.T) {
	id := ComputeID(uuid.NewString(), "prod.env")
	if len(id) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(id))
	}
	if _, err := hex.DecodeString(id); err != nil {
		t.Fatalf("id is not hex: %v", err)
	}
}

func TestComputeID_DistinctPairsDiffer(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	seen := make(map[string]string, 20000)
	for i := 0; i < 10000; i++ {
		repoID := uuid.NewString()
		fileName := fmt.Sprintf(".env.%d-%d", i, rng.Int63())
		id := ComputeID(repoID, fileName)
		pair := repoID + "\x00" + fileName
		if prev, ok := seen[id]; ok && prev != pair {
			t.Fatalf("collision: %q and %q both map to %s", prev, pair, id)
		}
		seen[id] = pair
	}
}
