// Package snapshot implements the snapshot builder: joining processed indexers with
// subgraphs into the immutable, cross-linked snapshot published by the refresh loop.
// The snapshot owns every entity in three flat maps; cross-references
// between views are by id (structural links) except IndexingView.Indexer,
// which holds a shared *IndexerView handle whose lifetime is guaranteed by
// the indexer map. This keeps the whole structure a DAG, never a cycle of
// owning pointers.
package snapshot

import (
	"sort"

	"github.com/semiotic-ai/network-topology/internal/ids"
	"github.com/semiotic-ai/network-topology/internal/model"
)

// IndexerView is the published, read-only view of one indexer.
type IndexerView struct {
	ID                ids.IndexerAddr
	URL               string
	StakedTokens      string
	AgentVersion      string
	NodeVersion       string
	LargestAllocation map[ids.DeploymentId]ids.AllocationId
	TotalAllocated    map[ids.DeploymentId]string
}

// IndexingView is the published view of one (deployment, indexer) pair.
type IndexingView struct {
	ID        ids.IndexingId
	Indexer   *IndexerView
	Status    *model.ProgressInfo
	CostModel *model.CompiledCostModel
}

// DeploymentView is the published view of one deployment.
type DeploymentView struct {
	ID                 ids.DeploymentId
	ManifestNetwork    string
	ManifestStartBlock *uint64
	TransferredToL2    bool
	Subgraphs          []ids.SubgraphId // ascending order
	Indexings          map[ids.IndexingId]*IndexingView
}

// SubgraphView is the published view of one subgraph.
type SubgraphView struct {
	ID          ids.SubgraphId
	IDOnL2      *ids.SubgraphId
	Deployments []ids.DeploymentId // ascending by version number, tie by id
	Indexings   map[ids.IndexingId]*IndexingView
}

// Snapshot is the immutable, cross-linked published network view. Every
// field is read-only after Build returns; a published Snapshot is never
// mutated in place, only replaced wholesale.
type Snapshot struct {
	Subgraphs   map[ids.SubgraphId]*SubgraphView
	Deployments map[ids.DeploymentId]*DeploymentView
	Indexers    map[ids.IndexerAddr]*IndexerView
}

// Subgraph looks up a subgraph by id.
func (s *Snapshot) Subgraph(id ids.SubgraphId) (*SubgraphView, bool) {
	v, ok := s.Subgraphs[id]
	return v, ok
}

// Deployment looks up a deployment by id.
func (s *Snapshot) Deployment(id ids.DeploymentId) (*DeploymentView, bool) {
	v, ok := s.Deployments[id]
	return v, ok
}

// Indexing looks up an indexing by its (deployment, indexer) composite id.
func (s *Snapshot) Indexing(id ids.IndexingId) (*IndexingView, bool) {
	dep, ok := s.Deployments[id.Deployment]
	if !ok {
		return nil, false
	}
	v, ok := dep.Indexings[id]
	return v, ok
}

// Build assembles a Snapshot from the processed indexers and validated
// subgraphs.
func Build(indexers map[ids.IndexerAddr]*model.IndexerInfo, subgraphs map[ids.SubgraphId]*model.SubgraphInfo) *Snapshot {
	// Step 0: publish IndexerView for every surviving indexer.
	indexerViews := make(map[ids.IndexerAddr]*IndexerView, len(indexers))
	for addr, info := range indexers {
		indexerViews[addr] = buildIndexerView(info)
	}

	// Step 1: invert indexers -> deployment -> indexer addrs.
	indexersByDeployment := make(map[ids.DeploymentId][]ids.IndexerAddr)
	for addr, info := range indexers {
		for dep := range info.Deployments {
			indexersByDeployment[dep] = append(indexersByDeployment[dep], addr)
		}
	}

	// Gather every deployment referenced by any surviving subgraph version,
	// along with its subgraph metadata (manifest fields, transfer flag),
	// sourced from the first subgraph version visited that references it
	// (subgraphs are visited in map order).
	type depMeta struct {
		info model.DeploymentInfo
	}
	referencedDeployments := make(map[ids.DeploymentId]depMeta)
	for _, sg := range subgraphs {
		for _, v := range sg.Versions {
			if _, seen := referencedDeployments[v.Deployment.ID]; !seen {
				referencedDeployments[v.Deployment.ID] = depMeta{info: v.Deployment}
			}
		}
	}

	// Step 2: build a DeploymentView for every referenced deployment. A
	// deployment with zero surviving indexers still gets published (empty
	// indexings) so subgraph lookups remain meaningful; a deployment never
	// referenced by any subgraph is never published at all.
	deploymentViews := make(map[ids.DeploymentId]*DeploymentView, len(referencedDeployments))
	for depID, meta := range referencedDeployments {
		dv := &DeploymentView{
			ID:                 depID,
			ManifestNetwork:    meta.info.ManifestNetwork,
			ManifestStartBlock: meta.info.ManifestStartBlock,
			TransferredToL2:    meta.info.TransferredToL2,
			Indexings:          make(map[ids.IndexingId]*IndexingView),
		}
		for _, addr := range indexersByDeployment[depID] {
			info := indexers[addr]
			iid := ids.IndexingId{Deployment: depID, Indexer: addr}
			iv := &IndexingView{ID: iid, Indexer: indexerViews[addr]}
			if p, ok := info.IndexingsProgress[depID]; ok {
				pCopy := p
				iv.Status = &pCopy
			}
			if cm, ok := info.IndexingsCostModel[depID]; ok {
				cmCopy := cm
				iv.CostModel = &cmCopy
			}
			dv.Indexings[iid] = iv
		}
		deploymentViews[depID] = dv
	}

	// Step 3: build a SubgraphView per subgraph, deployments ordered
	// ascending by version number (tie-break by DeploymentId), indexings as
	// the union across its deployments.
	subgraphViews := make(map[ids.SubgraphId]*SubgraphView, len(subgraphs))
	for sgID, sg := range subgraphs {
		type versionedDep struct {
			versionNumber uint32
			dep           ids.DeploymentId
		}
		versioned := make([]versionedDep, 0, len(sg.Versions))
		for _, v := range sg.Versions {
			versioned = append(versioned, versionedDep{versionNumber: v.VersionNumber, dep: v.Deployment.ID})
		}
		sort.Slice(versioned, func(i, j int) bool {
			if versioned[i].versionNumber != versioned[j].versionNumber {
				return versioned[i].versionNumber < versioned[j].versionNumber
			}
			return versioned[i].dep.Less(versioned[j].dep)
		})

		deps := make([]ids.DeploymentId, 0, len(versioned))
		indexings := make(map[ids.IndexingId]*IndexingView)
		for _, vd := range versioned {
			deps = append(deps, vd.dep)
			if dv, ok := deploymentViews[vd.dep]; ok {
				for iid, iv := range dv.Indexings {
					indexings[iid] = iv
				}
			}
		}

		subgraphViews[sgID] = &SubgraphView{
			ID:          sgID,
			IDOnL2:      sg.IDOnL2,
			Deployments: deps,
			Indexings:   indexings,
		}
	}

	// Step 4: populate the deployment -> subgraphs back-pointer set.
	subgraphsByDeployment := make(map[ids.DeploymentId]map[ids.SubgraphId]struct{})
	for sgID, sg := range subgraphs {
		for _, v := range sg.Versions {
			set, ok := subgraphsByDeployment[v.Deployment.ID]
			if !ok {
				set = make(map[ids.SubgraphId]struct{})
				subgraphsByDeployment[v.Deployment.ID] = set
			}
			set[sgID] = struct{}{}
		}
	}
	for depID, dv := range deploymentViews {
		set := subgraphsByDeployment[depID]
		list := make([]ids.SubgraphId, 0, len(set))
		for sgID := range set {
			list = append(list, sgID)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Less(list[j]) })
		dv.Subgraphs = list
	}

	// Step 5: "freeze" — the views above are never mutated again once this
	// function returns; the caller publishes the Snapshot value as-is.
	return &Snapshot{
		Subgraphs:   subgraphViews,
		Deployments: deploymentViews,
		Indexers:    indexerViews,
	}
}

func buildIndexerView(info *model.IndexerInfo) *IndexerView {
	largest := make(map[ids.DeploymentId]ids.AllocationId, len(info.LargestAllocation))
	for dep, alloc := range info.LargestAllocation {
		if _, ok := info.Deployments[dep]; ok {
			largest[dep] = alloc
		}
	}
	totals := make(map[ids.DeploymentId]string, len(info.TotalAllocated))
	for dep, total := range info.TotalAllocated {
		if _, ok := info.Deployments[dep]; ok {
			totals[dep] = total.String()
		}
	}
	agentVersion, nodeVersion := "", ""
	if info.AgentVersion != nil {
		agentVersion = info.AgentVersion.String()
	}
	if info.NodeVersion != nil {
		nodeVersion = info.NodeVersion.String()
	}
	return &IndexerView{
		ID:                info.ID,
		URL:               info.URL.String(),
		StakedTokens:      info.StakedTokens.String(),
		AgentVersion:      agentVersion,
		NodeVersion:       nodeVersion,
		LargestAllocation: largest,
		TotalAllocated:    totals,
	}
}
