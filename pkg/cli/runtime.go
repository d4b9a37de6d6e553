package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/cli/config"
	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/usecase"
	"github.com/betwatch/casekeeper/pkg/utils/logging"
)

// setupUseCases loads the workflow, opens the repository and builds the engine. The returned
// function closes the repository.
func setupUseCases(ctx context.Context, wfCfg *config.WorkflowConfig, repoCfg *config.Repository, opts ...usecase.Option) (*usecase.UseCases, interfaces.Repository, func(), error) {
	wf, err := wfCfg.Configure()
	if err != nil {
		return nil, nil, nil, goerr.Wrap(err, "failed to load workflow")
	}

	repo, err := repoCfg.Configure(ctx, wf.Graph)
	if err != nil {
		return nil, nil, nil, goerr.Wrap(err, "failed to initialize repository")
	}
	closer := func() {
		if err := repo.Close(); err != nil {
			logging.Default().Error("failed to close repository", "error", err.Error())
		}
	}

	ucOpts := append(wf.Options(), opts...)
	return usecase.New(repo, ucOpts...), repo, closer, nil
}
