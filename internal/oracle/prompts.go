package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
)

const clarifyTemplate = `You are an expert analytics assistant helping a user clarify their intent before starting an analysis.

User's initial question: %s
Why: %s
What: %s
Data schema (JSON): %s

Identify ambiguous terms, missing context, or unclear goals in the question and produce one clarification question per item. Use the data schema to make clarifications specific. For ambiguous terms provide multiple-choice options with short tooltips; free-text clarifications carry no options.

Return a JSON object of the form:
{"clarifications": [{"term": "...", "question": "...", "options": [{"label": "...", "tooltip": "..."}]}]}

If nothing needs clarification return {"clarifications": []}.
Return raw JSON only, no markdown.`

const nextStepTemplate = `You are an expert analytics assistant working inside an interactive notebook.

User question: %s
Why: %s
What: %s
Clarification answers (JSON): %s

Current notebook blocks (JSON list, most recent last):
%s

Previous context (what has already happened):
%s

Table information / available CSV files:
%s

Decide the SINGLE next step to move the analysis forward:
  - create_block: add one notebook block. Use blockType "python" for loading and preprocessing (pandas), "sql" only against an existing database datasource, "visualizationV2" for any chart (structured input with dataframeName, chartType, xAxis, yAxes; never matplotlib code).
  - insight: send a plain-language insight to the user. No notebook block.
  - done: the analysis is complete.

Before proposing a block, check the notebook blocks above. Load a dataframe with a python block before visualizing it. Do not propose a block whose type and key properties already exist.

Return a JSON object with keys:
  event     - "action", "insight" or "done"
  action    - "create_block" when event is "action"
  blockType - "python", "sql" or "visualizationV2"
  content   - code or SQL text
  input     - structured object for visualizationV2 blocks
  summary   - short english description

Return raw JSON only, no markdown.`

const repairTemplate = `The following python snippet failed inside an analytics notebook.

Code:
%s

Error:
%s

Return a JSON object {"code": "<corrected snippet>"}. If you cannot fix it return {"code": ""}. Return raw JSON only, no markdown.`

const sqlEditTemplate = `You are an expert SQL developer editing a query inside an analytics notebook.

Dialect: %s
Table information:
%s

Current query:
%s

Edit instructions: %s

Return only the edited SQL query, no markdown and no explanation.`

const pythonEditTemplate = `You are an expert Python developer editing a snippet inside an analytics notebook.

Allowed libraries: %s
Variables in scope:
%s

Current source:
%s

Edit instructions: %s

Return only the edited Python source, no markdown and no explanation.`

func clarifyPrompt(req ClarifyRequest) string {
	return fmt.Sprintf(clarifyTemplate, req.Question, req.Why, req.What, req.DataSchema)
}

func nextStepPrompt(req NextStepRequest) string {
	answers, _ := json.Marshal(req.Answers)
	blocks, _ := json.Marshal(req.NotebookBlocks)
	return fmt.Sprintf(nextStepTemplate,
		req.Question, req.Why, req.What, string(answers), string(blocks), req.Context, req.TableInfo)
}

func repairPrompt(req RepairRequest) string {
	return fmt.Sprintf(repairTemplate, req.Code, req.Error)
}

func sqlEditPrompt(req SQLEditRequest) string {
	return fmt.Sprintf(sqlEditTemplate, req.Dialect, req.TableInfo, req.Query, req.Instructions)
}

func pythonEditPrompt(req PythonEditRequest) string {
	return fmt.Sprintf(pythonEditTemplate,
		strings.Join(req.AllowedLibraries, ", "), req.Variables, req.Source, req.Instructions)
}
