package llm

import (
	"fmt"
	"strings"

	"codemedic/internal/repair"
)

const fixerSystem = "You are a Python expert and QA engineer who repairs broken game code."

const syntaxFixPrompt = `The following Python file from a generated game project fails a static check.

[FILE] %s

[BROKEN CODE]
%s

[ERROR]
%s
%s
[TASK]
1. Analyze the error and the code.
2. Fix the error (syntax errors, missing imports, references to names other modules do not define).
3. Keep every public name other files rely on.
4. Output the FULL corrected file.

Return the fixed code inside a ` + "```python ... ```" + ` block.
`

const logicFixPrompt = `The following Python file from a generated game project has a logic problem.

[FILE] %s

[CODE]
%s

[PROBLEM]
%s
%s
[TASK]
1. Find the cause of the problem (crashes under random input, unresponsive controls, state never updated).
2. Fix it without changing the file's public interface.
3. Output the FULL corrected file.

Return the fixed code inside a ` + "```python ... ```" + ` block.
`

const reviewSystem = "You are a senior game developer reviewing code for logic errors."

const reviewPrompt = `Review the following Python file for LOGIC ERRORS, in particular controls and movement.

[CODE]
%s
%s
[CHECKLIST]
1. Are input handlers (on_key_press, on_mouse_press, ...) wired to state the game actually uses?
2. Do movement inputs change the player's position or velocity?
3. Is speed or velocity non-zero where movement is expected?
4. Does the per-frame update advance the game state?
5. Are names used from other project files actually defined there?

[OUTPUT FORMAT]
If the code is good and playable, output exactly:
PASS

If there are logic issues, output:
FAIL: <brief explanation>
`

func repairPrompt(req repair.Request) string {
	extra := contextSections(req.Structure, req.Context)
	if req.FixType == repair.FixLogic {
		return fmt.Sprintf(logicFixPrompt, req.Filename, req.Code, req.Error, extra)
	}
	return fmt.Sprintf(syntaxFixPrompt, req.Filename, req.Code, req.Error, extra)
}

func reviewPromptFor(code, context string) string {
	return fmt.Sprintf(reviewPrompt, code, contextSections("", context))
}

func contextSections(structure, context string) string {
	var b strings.Builder
	if s := strings.TrimSpace(structure); s != "" {
		b.WriteString("\n[PROJECT STRUCTURE]\n")
		b.WriteString(s)
		b.WriteString("\n")
	}
	if c := strings.TrimSpace(context); c != "" {
		b.WriteString("\n[REFERENCE SNIPPETS]\n")
		b.WriteString(c)
		b.WriteString("\n")
	}
	return b.String()
}
