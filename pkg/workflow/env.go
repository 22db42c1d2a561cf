package workflow

import "github.com/karzal/wove/pkg/models"

// WorkflowEnv builds the resolution environment for a run: string-valued
// workflow variables overlaid with process-level secrets. The result is
// handed to the resolver only and must never be persisted or logged; resumed
// runs rebuild it from the same sources.
func WorkflowEnv(wf *models.Workflow, secrets map[string]string) map[string]string {
	env := make(map[string]string, len(wf.Variables)+len(secrets))

	for name, value := range wf.Variables {
		if text, ok := value.(string); ok {
			env[name] = text
		}
	}

	for name, value := range secrets {
		env[name] = value
	}

	return env
}
