package prompts

// 内置默认模板，JSON 返回格式说明与各阶段解析结构一一对应

const defaultPreprocessTemplate = `You are analyzing a smart contract for potential vulnerabilities in token flow.

Please analyze the following code, focusing on the described target functionality:

TARGET: {{.TargetDescription}}

CODE:
` + "```solidity\n{{.Code}}\n```" + `

ANALYSIS ASSUMPTIONS:
1. {{.PrivilegedVars}}
2. {{.UserControlledVars}}
3. {{.ManipulationHierarchy}}

Provide the following analysis:

1. Describe the overall token flow in the target functionality.

2. Identify all variables (both state and local) that affect token flow amounts, and categorize them based on manipulation difficulty:
   - easy: Variables directly controllable by users
   - medium: Variables indirectly controllable with some prerequisites
   - hard: Variables that require complex prerequisites or exploits to manipulate
   - impossible: Variables controlled by privileged accounts or set in constructor

3. Identify all dependencies (functions, modifiers, imported contracts) that the token flow relies on, and categorize them based on risk of error or manipulation using the same scale.

Format your response as a JSON object with:
{
    "token_flow_description": "detailed description of the token flow",
    "variables": {
        "variable_name1": {
            "type": "state/local",
            "description": "what it does",
            "manipulation_difficulty": "easy/medium/hard/impossible",
            "manipulation_method": "how it could potentially be manipulated",
            "impact_on_token_flow": "how manipulation would affect token flow"
        }
    },
    "dependencies": {
        "dependency_code1": {
            "type": "function/modifier/contract",
            "description": "what it does",
            "manipulation_difficulty": "easy/medium/hard/impossible",
            "manipulation_method": "how it could potentially be manipulated",
            "impact_on_token_flow": "how manipulation would affect token flow"
        }
    }
}

Include only variables and dependencies that actually impact the token flow amount.
Return ONLY the JSON object, without any additional text or markdown formatting.`

const defaultPathTemplate = `You are analyzing a smart contract for potential vulnerabilities in token flow.

CODE:
` + "```solidity\n{{.Code}}\n```" + `

TOKEN FLOW DESCRIPTION:
{{.FlowDescription}}

CONTEXT FOR THIS ANALYSIS: {{.RoundContext}}

Variables to consider:
{{.Variables}}

Dependencies to consider:
{{.Dependencies}}

Previous findings:
{{.PreviousFindings}}

Based on the token flow description and the variables/dependencies to consider in this iteration, identify the most promising code path for finding vulnerabilities.

Format your response as a JSON object with:
{
    "code_path": "relevant code snippets that represent the token flow path",
    "analysis_focus": "what specific variables or dependencies should be manipulated in this path",
    "manipulation_strategy": "detailed explanation of how to manipulate these variables/dependencies",
    "expected_impact": "expected impact on token flow if manipulation is successful",
    "assumptions": "any assumptions being made in this iteration"
}`

const defaultActionTemplate = `You are an expert smart contract auditor validating a potential vulnerability.

GOAL: {{.Goal}}

CODE PATH TO ANALYZE:
` + "```\n{{.CodePath}}\n```" + `

ANALYSIS FOCUS: {{.AnalysisFocus}}

MANIPULATION STRATEGY: {{.Strategy}}

KNOWN ASSUMPTIONS:
{{.Assumptions}}

KNOWN ATTACK PATTERNS:
{{.AttackPatterns}}

Your task is to:
1. Carefully analyze the provided code path
2. Determine if there's a way to manipulate the variables in the code path to achieve the goal
3. If possible, provide concrete, executable transaction sequences that an attacker would use
4. Calculate the actual profit the attacker would make, with specific token amounts when possible
5. Consider all edge cases, preconditions, and constraints that might prevent the attack

Be extremely rigorous in your analysis. The attack is only valid if all steps are feasible AND result in profit.

Format your response as a JSON object with:
{
    "vulnerability_found": true/false,
    "vulnerability_type": "type of vulnerability if found",
    "attack_scenario": "detailed description of the attack scenario",
    "exploit_code": "code sample or transaction sequence demonstrating the exploit",
    "profit_mechanism": "detailed explanation of how the attacker profits",
    "attack_prerequisites": "specific conditions that must be met for the attack to succeed",
    "attack_limitations": "limitations or constraints on the attack",
    "edge_cases": "edge cases that might prevent the attack",
    "confidence": "high/medium/low confidence in this finding",
    "reasons_if_not_feasible": "detailed explanation of why the attack is not feasible if applicable",
    "reasoning": "your detailed step-by-step reasoning"
}

If you determine the attack is not feasible, clearly explain why at each step where it fails.`

const defaultReflectionTemplate = `You are a security expert evaluating the findings of a smart contract audit.

GOAL: {{.Goal}}

CODE SNIPPET:
` + "```solidity\n{{.Code}}\n```" + `

AUDIT FINDING:
{{.Finding}}

EVALUATION ASSUMPTIONS:
1. {{.StrictEvaluation}}
2. {{.FalsePositiveHandling}}
3. {{.PrivilegedVars}}

Evaluate whether this finding legitimately meets the goal. Be extremely rigorous and critical.

Consider:
1. Is the vulnerability real, or is it a false positive?
2. Does the described attack scenario actually work exactly as described?
3. Are all the prerequisites for the attack realistically achievable?
4. Would the attacker genuinely profit from this in practice?
5. Are there any flaws in the reasoning or overlooked constraints?

If you identify any issues, explain exactly what's wrong and why the attack wouldn't work as described.

Format your response as a JSON object with:
{
    "goal_met": true/false,
    "finding_quality": "high/medium/low",
    "evaluation": "detailed evaluation of the finding",
    "critical_flaws": "any critical flaws that invalidate the finding",
    "overlooked_constraints": "any constraints that were overlooked",
    "variables_to_exclude": ["variables that should be excluded from future analysis due to false positives"],
    "variables_to_include": ["variables that deserve explicit analysis in future iterations"],
    "additional_conditions": "additional conditions required for a successful attack",
    "suggestions": "suggestions for further analysis if the goal is not met",
    "new_focus_areas": "specific areas to focus on in the next iteration if needed"
}`
