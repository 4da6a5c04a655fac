package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	database "github.com/r3e-network/flowlayer/infrastructure/database"
	"github.com/r3e-network/flowlayer/engine/model"
)

// definitionGraph is the JSON shape a ProcessDefinition's graph column
// holds — just the author-supplied elements/flows; the reachability cache
// is unexported and recomputed by model.NewProcessDefinition on load.
type definitionGraph struct {
	Elements map[string]*model.Element      `json:"elements"`
	Flows    map[string]*model.SequenceFlow `json:"flows"`
}

func (s *Store) SaveDefinition(ctx context.Context, pd *model.ProcessDefinition) error {
	graph, err := json.Marshal(definitionGraph{Elements: pd.Elements, Flows: pd.Flows})
	if err != nil {
		return err
	}
	return ctxExec(ctx, s.Querier(ctx), `
		INSERT INTO process_definitions (id, key, version, name, graph)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET key = $2, version = $3, name = $4, graph = $5
	`, pd.ID, pd.Key, pd.Version, pd.Name, graph)
}

func (s *Store) scanDefinition(ctx context.Context, query string, args ...interface{}) (*model.ProcessDefinition, error) {
	var row struct {
		ID      string `db:"id"`
		Key     string `db:"key"`
		Version int    `db:"version"`
		Name    string `db:"name"`
		Graph   []byte `db:"graph"`
	}
	if err := s.Querier(ctx).GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, database.NewNotFoundError("ProcessDefinition", fmtArg(args))
		}
		return nil, err
	}
	var graph definitionGraph
	if err := json.Unmarshal(row.Graph, &graph); err != nil {
		return nil, err
	}
	return model.NewProcessDefinition(row.ID, row.Key, row.Version, row.Name, graph.Elements, graph.Flows)
}

func fmtArg(args []interface{}) string {
	if len(args) == 0 {
		return ""
	}
	if s, ok := args[0].(string); ok {
		return s
	}
	return ""
}

func (s *Store) GetDefinition(ctx context.Context, id string) (*model.ProcessDefinition, error) {
	return s.scanDefinition(ctx, `SELECT id, key, version, name, graph FROM process_definitions WHERE id = $1`, id)
}

func (s *Store) GetLatestDefinitionByKey(ctx context.Context, key string) (*model.ProcessDefinition, error) {
	return s.scanDefinition(ctx, `
		SELECT id, key, version, name, graph FROM process_definitions
		WHERE key = $1 ORDER BY version DESC LIMIT 1
	`, key)
}
