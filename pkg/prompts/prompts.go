package prompts

var (
	GenerateCode = `
You are an expert {{.Language}} programmer. Write a complete {{.Language}} script that achieves the following task:
"{{.Task}}"

The script is written to a file and run with the {{.Language}} interpreter from the working directory, so relative
paths resolve there. Print the results the task asks for to standard output.

Previous attempts, results, feedback and examples:
{{.Context}}

Learn from the previous attempt if there was one: read its result and feedback carefully and do not repeat the same mistake.

Think step by step about the approach, then provide the whole script.

Fill in the following json format, escape any invalid characters in the values, return only what is in the json block, e.g. {}:
{
    "reasoning": "{STEP_BY_STEP_THINKING}",
    "code": "{COMPLETE_SCRIPT}"
}
`

	// GenerateAndJudge lets one oracle both write code and decide when it is
	// done, after it has seen the result of running its previous script.
	GenerateAndJudge = `
You are an expert {{.Language}} programmer working iteratively on the following task:
"{{.Task}}"

Previous attempts, results and feedback:
{{.Context}}

Result of running your most recent script:
{{.ExecutionResult}}

If the most recent result shows the task is fully accomplished, set "finished" to true and repeat that script as the code.
Otherwise set "finished" to false and write an improved complete script.

Fill in the following json format, escape any invalid characters in the values, return only what is in the json block, e.g. {}:
{
    "reasoning": "{YOUR_REASONING}",
    "code": "{COMPLETE_SCRIPT}",
    "finished": {true_OR_false}
}
`

	EvaluateGoal = `
You are a strict reviewer. A {{.Language}} script was written and executed to achieve this task:
"{{.Task}}"

The script:
{{.Code}}

The result of executing it (stdout, stderr, return code):
{{.ExecutionResult}}

Decide whether the task was accomplished. A script that crashed, printed an error, or did not produce what the task
asks for has not accomplished it. Explain your reasoning in detail and give specific, actionable feedback for the next attempt.

Fill in the following json format, escape any invalid characters in the values, return only what is in the json block, e.g. {}:
{
    "rationale": "{DETAILED_REASONING}",
    "achieved": {true_OR_false},
    "feedback": "{WHAT_TO_CHANGE_NEXT}"
}
`

	ExampleReasoning = `
The following {{.Language}} script successfully accomplished the task "{{.Task}}":
{{.Code}}

This is what was learned while refining it:
{{.IterationContext}}

Write clear, general reasoning explaining the approach and methodology so it can be reused for similar tasks.
Synthesize the insights from the refinement but do not refer to specific attempts or failures.

Provide your response in the following json format:
{
    "reasoning": "{REUSABLE_REASONING}"
}
`
)
