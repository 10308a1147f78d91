/*
包 image 提供一次性的图像生成与图像描述能力。

  - Provider：文生图接口，内置 OpenAIProvider（OpenAI 兼容的
    /images/generations，覆盖 OpenAI、Together、Heurist、Venice 等）
    与 GeminiProvider（genai SDK 调用 Imagen）。
  - GenerateImage / GenerateCaption：不重试，结果统一包装为
    Result{Success, Data, Error} 信封，调用方无需区分错误类型。
*/
package image
