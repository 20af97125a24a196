package questions

import "github.com/ksandoe/quizmaker/internal/llm"

const systemPrompt = "You are a helpful assistant that generates multiple choice questions. Always follow the exact format specified."

const instructionTemplate = `Generate a multiple choice question based on this text. The question should test understanding of key concepts. Format your response exactly like this example:
Q: What is the capital of France?
A: Paris
B: London
C: Berlin
D: Madrid
CORRECT: A

Here's the text to generate a question from:
`

// Messages builds the fixed instruction for one segment.
func Messages(content string) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: instructionTemplate + content},
	}
}
