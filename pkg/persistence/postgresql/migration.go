package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow definitions. The block graph is stored as JSON; the
			-- engine treats a workflow as an immutable document per run.
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				blocks JSONB NOT NULL DEFAULT '[]',
				connections JSONB NOT NULL DEFAULT '[]',
				loops JSONB,
				variables JSONB,
				metadata JSONB,
				owner VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_owner ON workflows(owner);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);
		`,
		2: `
			-- Paused executions: one row per suspended run, carrying the
			-- serialized execution context.
			CREATE TABLE paused_executions (
				execution_id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('paused', 'resuming', 'resumed', 'failed')),
				total_pause_count INT NOT NULL DEFAULT 0,
				resumed_count INT NOT NULL DEFAULT 0,
				state JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				expires_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_paused_executions_workflow_id ON paused_executions(workflow_id);
			CREATE INDEX idx_paused_executions_status ON paused_executions(status);
			CREATE INDEX idx_paused_executions_expires_at ON paused_executions(expires_at);

			-- Pause points: one row per suspension site, keyed by the
			-- context id external callers resume against.
			CREATE TABLE pause_points (
				context_id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				execution_id VARCHAR(255) NOT NULL,
				trigger_block_id VARCHAR(255) NOT NULL,
				resume_status VARCHAR(50) NOT NULL CHECK (resume_status IN ('paused', 'queued', 'resuming', 'resumed', 'failed')),
				payload JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_pause_points_execution_id ON pause_points(execution_id);
			CREATE INDEX idx_pause_points_resume_status ON pause_points(resume_status);

			-- Resume queue: every resume request becomes one row. The
			-- partial unique index is the invariant: at most one claimed
			-- entry per pause point at any time.
			CREATE TABLE resume_queue (
				id VARCHAR(255) PRIMARY KEY,
				context_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('queued', 'claimed', 'completed', 'failed')),
				resume_input JSONB,
				new_execution_id VARCHAR(255),
				failure_reason TEXT,
				queued_at TIMESTAMP WITH TIME ZONE NOT NULL,
				claimed_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_resume_queue_context_id ON resume_queue(context_id);
			CREATE INDEX idx_resume_queue_status ON resume_queue(status);
			CREATE UNIQUE INDEX idx_resume_queue_one_claimed ON resume_queue(context_id) WHERE status = 'claimed';
		`,
	}
}
