package pipeline

import "github.com/orpheus-edu/orpheus-core/internal/types"

// Canned payloads for smoke mode. They mirror a small for-loop lecture so the
// whole pipeline can be exercised without any LLM or retrieval deployment.

func fixtureSubqueries() []string {
	return []string{
		"what is a for-loop",
		"elements of a for-loop: initialization, condition, modification",
		"advantages and uses of for-loops",
	}
}

func fixtureChunks() []types.DocumentChunk {
	return []types.DocumentChunk{
		{
			Content: []string{
				"A for-loop repeats the same action a certain amount of times. A real-life example is doing push-ups for exercise, which is a repetitive task.",
				"Example program in Java: `for (int i = 0; i < 10; i++) { System.out.println(i); }`. The output starts at 0 and ends at 9.",
			},
		},
		{
			Content: []string{
				"A for-loop has three elements. The initialization sets the value used for the first iteration. The condition is checked before every iteration, including the first, so the loop is not entered if it is initially false. The modification alters the loop variable so the loop eventually terminates.",
			},
		},
		{
			Content: []string{
				"Advantages of for-loops are reduction of code, concise syntax for counting and versatile usages. Potential uses are counting, iterating over an array and periodically performing a specific action.",
			},
		},
	}
}

func fixtureScript() types.LectureScript {
	return types.LectureScript{
		Text: "The lecture has for-loops as topic. To explain the concept of loops, first a real-life example is used: doing push-ups for exercise, a repetitive task. The same concept applies to computer programs, for example when an action has to be performed for each user in a system. This is shown with a Java program: `for (int i = 0; i < 10; i++) { System.out.println(i); }`. The students are encouraged to think about what output this program produces. The output starts at 0 and ends at 9. The elements of a for-loop are then examined individually: the initialization sets the value for the first iteration; the condition is checked before every iteration, so the loop is not entered if it is initially false; the modification alters the variable so the loop terminates. To wrap up, the advantages of for-loops are reduction of code, concise syntax for counting and versatile usages. Potential uses are counting, iterating over an array and periodically performing a specific action.",
	}
}

func fixtureDrafts() []types.SlideDraft {
	return []types.SlideDraft{
		{Index: 1, Content: "Title slide introducing the lecture: For-Loops, repeating actions in programming.", LayoutName: "cover"},
		{Index: 2, Content: "Repetitive tasks in real life: the push-up example. Doing push-ups for exercise means repeating the same action multiple times. The same holds for programs that perform an action for each user in a system.", LayoutName: "default"},
		{Index: 3, Content: "Example Java for-loop: `for (int i = 0; i < 10; i++) { System.out.println(i); }`. Ask the students what output this program may produce; the output is the numbers 0 through 9, starting at 0 and ending at 9.", LayoutName: "code"},
		{Index: 4, Content: "The three elements of a for-loop. Initialization: the value used for the first iteration. Condition: checked before every iteration, the loop is not entered if it is initially false. Modification: alters the variable so the loop terminates.", LayoutName: "default"},
		{Index: 5, Content: "Closing slide. Advantages: reduction of code, concise syntax for counting, versatile usages. Potential uses: counting, iterating over an array, periodically performing an action. Thank the students.", LayoutName: "default"},
	}
}

func fixtureNarration(first, last bool) string {
	switch {
	case first && last:
		return "Welcome everyone. Today we look at for-loops in a single slide: initialization, condition, modification. Thank you for listening."
	case first:
		return "Welcome everyone. Today we look at for-loops, the programming construct that repeats an action a fixed number of times."
	case last:
		return "To recap: a for-loop has an initialization, a condition and a modification, and it saves us from writing the same code over and over. Thank you for listening."
	default:
		return "Let us look at this step of the lecture in detail, staying with our running for-loop example."
	}
}
