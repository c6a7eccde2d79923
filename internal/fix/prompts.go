package fix

import (
	"fmt"
	"strings"
	"sync"

	"github.com/standardbeagle/runbridge/internal/aichannel"
)

// TaskType identifies an LLM task of the pipeline.
type TaskType string

const (
	// TaskSummarizeFailure extracts message, file and line from build logs.
	TaskSummarizeFailure TaskType = "summarize_failure"

	// TaskGenerateFixes produces whole-file replacements for a failed build.
	TaskGenerateFixes TaskType = "generate_fixes"

	// TaskGenerateFixesJSON is TaskGenerateFixes answered as a JSON object.
	TaskGenerateFixesJSON TaskType = "generate_fixes_json"
)

// Prompt is the system and user template for one task. The user template
// receives the build log through a single %s verb.
type Prompt struct {
	System string
	User   string
}

// PromptRegistry holds the prompts for each task type.
type PromptRegistry struct {
	mu      sync.RWMutex
	prompts map[TaskType]Prompt
}

// DefaultPromptRegistry returns the built-in prompts.
func DefaultPromptRegistry() *PromptRegistry {
	return &PromptRegistry{
		prompts: map[TaskType]Prompt{
			TaskSummarizeFailure: {System: summarizeSystemPrompt, User: summarizeUserPrompt},
			TaskGenerateFixes:    {System: generateFixesSystemPrompt, User: generateFixesUserPrompt},
			TaskGenerateFixesJSON: {
				System: generateFixesSystemPrompt,
				User:   aichannel.BuildEmbeddedJSONPrompt(generateFixesJSONInstruction, fixesJSONSchema),
			},
		},
	}
}

// Get returns the prompt for a task type.
func (r *PromptRegistry) Get(taskType TaskType) (Prompt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prompts[taskType]
	return p, ok
}

// Override replaces the system and/or user text of a known task. Empty
// strings keep the current value. A user template must contain exactly one
// %s verb for the build log.
func (r *PromptRegistry) Override(taskType TaskType, system, user string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.prompts[taskType]
	if !ok {
		return fmt.Errorf("unknown task type: %s", taskType)
	}
	if user != "" {
		if strings.Count(user, "%s") != 1 || strings.Count(user, "%") != 1 {
			return fmt.Errorf("prompt %s: user template needs exactly one %%s verb", taskType)
		}
		p.User = user
	}
	if system != "" {
		p.System = system
	}
	r.prompts[taskType] = p
	return nil
}

var summarizeSystemPrompt = `You are a build failure analyst. You read build and run logs and locate the root cause.`

var summarizeUserPrompt = `A build has failed. Extract:
- A one-line summary of the cause (start with "MESSAGE:")
- The source file path where the error happened (start with "FILE:")
- The line number where the error occurred (start with "LINE:")

Example:
MESSAGE: Missing semicolon in DemoServerApplication.java at line 12.
FILE: src/main/java/com/hack/demoserver/DemoServerApplication.java
LINE: 12

Build logs:
%s`

var generateFixesSystemPrompt = `You are a code fixer. You return complete corrected files and nothing else.`

var generateFixesUserPrompt = `A project failed to build. Your job is to fix the code.
The project sources are attached as context.
Return only the full corrected content for each file that needs to be updated, no explanations.
Use paths relative to the project root. Each file must be in this format:

-- START OF FILE: path/to/File.java
<full fixed code>
-- END OF FILE

Build failure logs:
%s`

var generateFixesJSONInstruction = `A project failed to build. Your job is to fix the code.
The project sources are attached as context.
Return the full corrected content of each file that needs to change, with
paths relative to the project root.

Build failure logs:
%s`

var fixesJSONSchema = `{"files": [{"path": "relative/path/to/File.java", "code": "<full fixed code>"}]}`
