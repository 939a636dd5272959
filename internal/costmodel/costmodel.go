// Package costmodel implements best-effort cost-model source fetch plus a
// single-threaded compile step behind a mutex. Resolution failure or a
// compile error never blocks the indexer — the entry is simply dropped.
// The compiler itself (the cost-model query language and its actual
// compilation) is out of scope here; this package only defines the
// Compiler boundary and a placeholder implementation used where no real
// compiler is wired in.
package costmodel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"sync"

	"github.com/semiotic-ai/network-topology/internal/model"
	"github.com/semiotic-ai/network-topology/internal/probe"
)

// Compiler turns a cost-model source string into an opaque compiled
// representation. A real implementation would invoke the Agora-QL
// compiler; that dependency is external to this core.
type Compiler interface {
	Compile(deploymentID, source string) (any, error)
}

// SourceHashCompiler is a placeholder Compiler: it "compiles" a source by
// hashing it. Used where no real cost-model compiler is wired in (tests,
// or deployments that choose not to run one).
type SourceHashCompiler struct{}

// Compile implements Compiler.
func (SourceHashCompiler) Compile(deploymentID, source string) (any, error) {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:]), nil
}

type probeRequest struct {
	Deployments []string `json:"deployments"`
}

type probeResponse struct {
	// Sources is keyed by deployment hex id; missing keys mean "no cost
	// model published", never an error.
	Sources map[string]string `json:"sources"`
}

// Resolver fetches cost-model sources and compiles them, guarding the
// injected Compiler (assumed not safe for concurrent use) with a coarse
// mutex. Contention is short-held and off the hot path.
type Resolver struct {
	client *probe.Client

	compilerMu sync.Mutex
	compiler   Compiler
}

// New builds a Resolver. compiler may be a SourceHashCompiler{} when no
// real compiler is configured.
func New(client *probe.Client, compiler Compiler) *Resolver {
	return &Resolver{client: client, compiler: compiler}
}

// Resolve fetches and compiles a cost-model source for each deployment in
// info.Deployments. Fetch failure, an empty result, or a per-deployment
// compile failure is logged and leaves info.IndexingsCostModel short that
// entry; none of it blocks the indexer or aborts the refresh.
func (r *Resolver) Resolve(ctx context.Context, baseURL string, info *model.IndexerInfo) {
	if len(info.Deployments) == 0 {
		return
	}

	req := probeRequest{Deployments: make([]string, 0, len(info.Deployments))}
	for dep := range info.Deployments {
		req.Deployments = append(req.Deployments, dep.String())
	}

	var resp probeResponse
	if err := r.client.PostJSON(ctx, "costmodel", baseURL, "/cost-models", req, &resp); err != nil {
		log.Printf("costmodel: indexer %s: fetch failed (tolerated): %v", info.ID, err)
		return
	}

	for dep := range info.Deployments {
		source, ok := resp.Sources[dep.String()]
		if !ok || source == "" {
			continue
		}
		compiled, err := r.compile(dep.String(), source)
		if err != nil {
			log.Printf("costmodel: indexer %s deployment %s: compile failed (tolerated): %v", info.ID, dep, err)
			continue
		}
		info.IndexingsCostModel[dep] = model.CompiledCostModel{
			DeploymentID: dep,
			SourceHash:   hashSource(source),
			Model:        compiled,
		}
	}
}

func (r *Resolver) compile(deploymentID, source string) (any, error) {
	r.compilerMu.Lock()
	defer r.compilerMu.Unlock()
	return r.compiler.Compile(deploymentID, source)
}

func hashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
